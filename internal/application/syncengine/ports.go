package syncengine

import (
	"context"

	"github.com/cassiomorais/posqueue/internal/infrastructure/transport"
)

// Submitter sends one transaction to the remote ledger.
type Submitter interface {
	Submit(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Connectivity is the part of the connectivity monitor the engine uses.
type Connectivity interface {
	IsOnline() bool
	OnResume(fn func()) (unsubscribe func())
}

// StatusSink receives the engine's progress for display.
type StatusSink interface {
	SetSyncing(syncing bool)
	SetPendingCount(n int)
	SetMessage(msg string)
}

// Lease coordinates drains across processes sharing one store.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// Cleaner removes old synced records.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
}

type noopStatus struct{}

func (noopStatus) SetSyncing(bool)     {}
func (noopStatus) SetPendingCount(int) {}
func (noopStatus) SetMessage(string)   {}
