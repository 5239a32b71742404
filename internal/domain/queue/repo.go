package queue

import "context"

// Repository persists one Queue record per room. Every mutation is a
// read-modify-write on the whole record; Save upserts.
type Repository interface {
	GetByRoom(ctx context.Context, room string) (*Queue, error)
	Save(ctx context.Context, q *Queue) error
	ListActive(ctx context.Context) ([]*Queue, error)
	ListAll(ctx context.Context) ([]*Queue, error)
}
