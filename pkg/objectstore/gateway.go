// Package objectstore puts, lists and signs objects in the price-inventory
// bucket.
package objectstore

import (
	"context"

	"github.com/pario-ai/costdesk/pkg/models"
)

// Gateway is the bucket surface the upload session needs.
type Gateway interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// List returns every object in the bucket.
	List(ctx context.Context) ([]models.ObjectInfo, error)

	// SignedURL returns a time-limited GET link for key.
	SignedURL(ctx context.Context, key string) (string, error)
}
