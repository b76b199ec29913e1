package uploadcache

import "context"

// Store persists the key → URL map. Save always receives the complete map
// and must replace the stored state atomically.
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, entries map[string]string) error
	Close() error
}
