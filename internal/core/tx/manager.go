// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; storage packages implement them.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// Row locks taken by repositories inside fn (session FOR UPDATE / FOR SHARE)
// are held until fn returns. Nested calls reuse the transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Report generation uses it to read a session and its items consistently.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
