package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by [Storage.Get] when the key is absent or expired.
var ErrNotFound = errors.New("storage key not found")

// ErrStorageUnavailable wraps backend failures from a [Storage].
var ErrStorageUnavailable = errors.New("session storage unavailable")

// Storage is the key-value capability the [Store] writes through. A zero
// ttl means the key does not expire.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
