// Package post defines the core domain types shared across the engine:
// platforms, lifecycle statuses, the durable Record, and post ID generation.
package post
