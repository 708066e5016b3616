// Package metadata implements a small local key/value store used for sync
// bookkeeping: the device identity, auth tokens, and the pull cursor.
package metadata

import "context"

type Repository interface {
	// Get returns the value for key, or nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Clear removes all keys.
	Clear(ctx context.Context) error
}
