package checkpoint

import (
	"context"
)

// Store persists snapshots of type *T keyed by a comparable key K.  For epic
// orchestration the key is the thread id and the value the epic state; the
// last saved snapshot is authoritative and lets another process resume a
// suspended epic exactly where it left off.
type Store[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context) ([]*T, error)
}
