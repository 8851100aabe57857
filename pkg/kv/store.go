// Package kv provides the persistent string key-value stores the client keeps
// its session, resolved API address and task cache in.
package kv

import "context"

// Well-known keys.
const (
	KeyAuthToken       = "auth_token"
	KeyAuthUser        = "auth_user"
	KeyAPIConfig       = "api_config"
	KeyTasks           = "tasks"
	KeyCalendarIndex   = "calendar_index"
	KeyCalendarColors  = "calendar_colors"
	KeyCalendarOverdue = "calendar_overdue"
	KeyGoogleToken     = "google_token"
)

// Store is an async string key-value store. Writes to the same key are
// last-write-wins; there are no transactions.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}
