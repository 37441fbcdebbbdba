// Package backup takes snapshots of the invoice data after it changed.
//
// A Tracker is registered as a plugin and marks the data dirty on every
// committed mutation. A Scheduler polls the tracker on an interval and asks
// a store.Snapshotter for a copy only when something changed. Rotation of
// old snapshot files is left to the caller.
package backup

import (
	"context"
	"sync/atomic"

	"github.com/xraph/invoicer/plugin"
)

var (
	_ plugin.Plugin     = (*Tracker)(nil)
	_ plugin.OnMutation = (*Tracker)(nil)
)

// Tracker records whether any mutation was committed since the last
// successful snapshot.
type Tracker struct {
	dirty     atomic.Bool
	mutations atomic.Int64
}

// NewTracker returns a clean tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Name implements plugin.Plugin.
func (t *Tracker) Name() string { return "backup-tracker" }

// OnMutation implements plugin.OnMutation.
func (t *Tracker) OnMutation(_ context.Context, _ plugin.Mutation) error {
	t.mutations.Add(1)
	t.dirty.Store(true)
	return nil
}

// Dirty reports whether a snapshot is due.
func (t *Tracker) Dirty() bool { return t.dirty.Load() }

// Mutations returns the number of mutations seen since creation.
func (t *Tracker) Mutations() int64 { return t.mutations.Load() }

// MarkDirty forces the next run to take a snapshot.
func (t *Tracker) MarkDirty() { t.dirty.Store(true) }

// take clears the flag and reports whether it was set.
func (t *Tracker) take() bool { return t.dirty.CompareAndSwap(true, false) }
