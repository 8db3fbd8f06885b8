package out

import "context"

// KVStore is a flat string-keyed, string-valued store.
type KVStore interface {
	// Get returns false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error

	// List returns every entry whose key starts with prefix. An empty prefix lists all.
	List(ctx context.Context, prefix string) (map[string]string, error)

	Close() error
}
