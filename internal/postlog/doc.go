// Package postlog persists post records.
//
// The log is the durable source of truth for every post the engine has ever
// seen; the in-memory queue only mirrors the not-yet-resolved subset. Records
// are never deleted, so terminal entries double as posting history.
package postlog
