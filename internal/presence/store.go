// Package presence records cross-node reachability in a shared key/value
// store with per-key expiry. Entries self-expire slightly after the
// heartbeat window, so a crashed node cannot leave a principal online
// forever.
package presence

import (
	"context"
	"errors"
	"time"
)

// KeyPrefix namespaces every presence entry.
const KeyPrefix = "presence:"

var ErrNotFound = errors.New("presence: record not found")

// Store is the narrow collaborator interface consumed by the core.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	ScanKeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Key builds the store key for a principal.
func Key(principalID string) string { return KeyPrefix + principalID }
