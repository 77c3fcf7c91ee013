// Package objstore persists photo bytes under opaque keys. The workflow core
// only sees keys and metadata; nothing here touches entity state.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectStore abstracts where photo bytes live.
type ObjectStore interface {
	// Put stores the object under key. Keys are opaque to callers.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// URL returns a time-limited link for reading the object.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Remove deletes the object. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
