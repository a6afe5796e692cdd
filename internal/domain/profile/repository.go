package profile

import "context"

type Repository interface {
	GetByID(ctx context.Context, id string) (Record, bool, error)
	// Insert writes rec and returns the row echoed by the store.
	// The bool is false when the store accepted the write but echoed nothing.
	Insert(ctx context.Context, rec Record, mode InsertMode) (Record, bool, error)
}
