// Package metadata stores small string values in the client's local
// database, keyed by name.
package metadata

import "context"

// Repository is a durable key/value store. Get returns
// common.ErrorNotFound for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
