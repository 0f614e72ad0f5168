package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"postpilot/internal/app"
	"postpilot/pkg/systemd"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Optional .env file for local runs; a missing file is fine.
	_ = godotenv.Load()

	defaultConfig := os.Getenv("POSTPILOT_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "./config.json"
	}

	var (
		cfgPath     string
		forceDryRun bool
		showVersion bool
	)
	flag.StringVar(&cfgPath, "config", defaultConfig, "path to config file (json or yaml)")
	flag.BoolVar(&forceDryRun, "dry-run", false, "keep dispatchers simulated regardless of config")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("postpilotd", version)
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(cfgPath, app.Options{Version: version, ForceDryRun: forceDryRun})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stopApp(a, app.StopFatalError)
		return 1
	}

	systemd.Ready()
	go systemd.WatchdogLoop(ctx)

	reason := app.StopAppStop
	code := 0
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
		cancel()
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
			code = 1
		}
	}

	systemd.Stopping()
	stopApp(a, reason)

	if code != 0 {
		fmt.Fprintln(os.Stderr, "fatal:", a.Err())
	}
	return code
}

func stopApp(a *app.App, reason app.StopReason) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
}
