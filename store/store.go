package store

import (
	"context"

	"github.com/xraph/invoicer/invoice"
)

// Store is the unified storage interface for invoicer.
//
// RunInTx runs fn inside one transaction. Store calls made with the ctx
// passed to fn join that transaction, and a nested RunInTx joins the
// outer one. Any error returned by fn rolls everything back.
type Store interface {
	invoice.Store

	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Snapshotter is implemented by stores that can write a consistent copy
// of their data to a file.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}
