package out

import (
	"context"
	"time"
)

// JSONCache stores JSON-encoded values under string keys.
type JSONCache interface {
	// GetJSON decodes the cached value into dest and reports whether the key existed.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
