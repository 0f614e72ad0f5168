package post

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Platform identifies a social network target.
type Platform string

const (
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
	LinkedIn  Platform = "linkedin"
	Facebook  Platform = "facebook"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// Platforms returns all supported platforms in canonical order.
func Platforms() []Platform {
	return []Platform{Twitter, Instagram, LinkedIn, Facebook}
}

// ParsePlatform accepts any casing and surrounding space.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Twitter, Instagram, LinkedIn, Facebook:
		return p, nil
	}
	return "", fmt.Errorf("%w %q (valid: twitter, instagram, linkedin, facebook)", ErrUnknownPlatform, s)
}

func (p Platform) String() string { return string(p) }

// Status is the lifecycle state of a post. Values are stable on-disk strings.
type Status string

const (
	StatusScheduled      Status = "scheduled"
	StatusPosting        Status = "posting"
	StatusPosted         Status = "posted"
	StatusFailed         Status = "failed"
	StatusScheduledRetry Status = "scheduled_retry"
	StatusError          Status = "error"
)

var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus accepts any casing and surrounding space.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusScheduled, StatusPosting, StatusPosted, StatusFailed, StatusScheduledRetry, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
}

// Terminal reports whether the status ends the post's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusPosted, StatusFailed, StatusError:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Content is the platform-specific payload. The engine passes it through
// untouched; it just has to survive a JSON round-trip.
type Content map[string]any

// Result is whatever a dispatcher returns for a successful post.
type Result map[string]any

// Record is the durable per-post entry kept in the post log.
//
// PostedAt is set on success only; Error holds the most recent failure or
// internal error message.
type Record struct {
	PostID        string    `json:"post_id"`
	Platform      Platform  `json:"platform"`
	Content       Content   `json:"content"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	RetryCount    int       `json:"retry_count"`
	Result        Result    `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	PostedAt      time.Time `json:"posted_at,omitzero"`
}
