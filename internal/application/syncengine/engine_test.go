package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	queueApp "github.com/cassiomorais/posqueue/internal/application/queue"
	"github.com/cassiomorais/posqueue/internal/application/status"
	"github.com/cassiomorais/posqueue/internal/connectivity"
	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/transport"
	"github.com/cassiomorais/posqueue/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	store     *testutil.MockStore
	submitter *testutil.MockSubmitter
	token     *testutil.MockTokenSource
	monitor   *connectivity.Monitor
	facade    *status.Facade
	manager   *queueApp.Manager
	engine    *Engine
}

func newHarness(t *testing.T, online bool, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:     testutil.NewMockStore(),
		submitter: testutil.NewMockSubmitter(),
		token:     testutil.NewMockTokenSource("tok-123"),
		monitor:   connectivity.NewMonitor(online),
		facade:    status.NewFacade(),
	}

	var tick int
	clock := func() time.Time {
		tick++
		return baseTime.Add(time.Duration(tick) * time.Millisecond)
	}
	h.manager = queueApp.NewManager(h.store, queueApp.WithStatus(h.facade), queueApp.WithClock(clock))

	opts = append([]Option{WithStatus(h.facade)}, opts...)
	h.engine = New(h.store, h.submitter, h.monitor, h.token, opts...)
	t.Cleanup(h.engine.Wait)
	return h
}

func (h *harness) enqueue(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id, err := h.manager.Enqueue(context.Background(), testutil.SalePayload(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) get(t *testing.T, id string) *domainQueue.Transaction {
	t.Helper()
	tx, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func TestEngine_OfflineQueueDrainsOnReconnect(t *testing.T) {
	h := newHarness(t, false)
	ids := h.enqueue(t, 3)
	assert.Equal(t, 3, h.facade.Snapshot().PendingCount)

	h.monitor.Set(true)
	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, Result{Attempted: 3, Succeeded: 3}, res)
	assert.Equal(t, 0, h.facade.Snapshot().PendingCount)
	assert.Equal(t, "Synced 3 transactions", h.facade.Snapshot().LastMessage)

	remote := map[string]bool{}
	for _, id := range ids {
		tx := h.get(t, id)
		assert.Equal(t, domainQueue.StatusSynced, tx.Status)
		require.NotNil(t, tx.RemoteID)
		require.NotNil(t, tx.SyncedAt)
		remote[*tx.RemoteID] = true
	}
	assert.Len(t, remote, 3, "each record gets its own remote id")
}

func TestEngine_SubmitsOldestFirstWithHeaders(t *testing.T) {
	h := newHarness(t, false)
	ids := h.enqueue(t, 3)
	h.monitor.Set(true)

	h.engine.SyncAll(context.Background())

	reqs := h.submitter.Requests()
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		assert.Equal(t, ids[i], req.LocalID)
		assert.Equal(t, string(testutil.SalePayload(i+1)), string(req.Payload))
		assert.Equal(t, "tok-123", req.BearerToken)
	}
}

func TestEngine_FailedSubmissionKeepsRecord(t *testing.T) {
	h := newHarness(t, false)
	ids := h.enqueue(t, 3)
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if req.LocalID == ids[1] {
			return nil, domainErrors.NewRemoteError(500, "boom")
		}
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 200}, nil
	}
	h.monitor.Set(true)

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, Result{Attempted: 3, Succeeded: 2, Failed: 1}, res)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, ids[0]).Status)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, ids[2]).Status)

	failed := h.get(t, ids[1])
	assert.Equal(t, domainQueue.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "HTTP 500: boom", *failed.LastError)
	assert.Equal(t, string(testutil.SalePayload(2)), string(failed.Payload))

	assert.Equal(t, 1, h.facade.Snapshot().PendingCount)
	assert.Equal(t, "Synced 2 of 3 transactions (1 failed)", h.facade.Snapshot().LastMessage)
}

func TestEngine_FailedRecordsRetriedUntilBound(t *testing.T) {
	h := newHarness(t, true, WithMaxRetries(3))
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))
	h.submitter.SubmitFunc = func(context.Context, transport.Request) (*transport.Response, error) {
		return nil, domainErrors.NewRemoteError(503, "")
	}

	for range 5 {
		h.engine.SyncAll(context.Background())
	}

	tx := h.get(t, "txn_1")
	assert.Equal(t, domainQueue.StatusFailed, tx.Status)
	assert.Equal(t, 3, tx.RetryCount)
	assert.Equal(t, 3, h.submitter.Calls(), "records at the bound are not drained")
}

func TestEngine_MissingRemoteIDFails(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))
	h.submitter.SubmitFunc = func(context.Context, transport.Request) (*transport.Response, error) {
		return nil, fmt.Errorf("HTTP 201: %w", domainErrors.ErrMissingRemoteID)
	}

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, 1, res.Failed)
	tx := h.get(t, "txn_1")
	assert.Equal(t, domainQueue.StatusFailed, tx.Status)
	assert.Nil(t, tx.RemoteID)
}

func TestEngine_NoAuthTokenFailsWithoutSubmitting(t *testing.T) {
	h := newHarness(t, true)
	h.token.Set("")
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, Result{Attempted: 1, Failed: 1}, res)
	assert.Equal(t, 0, h.submitter.Calls())
	tx := h.get(t, "txn_1")
	assert.Equal(t, domainQueue.StatusFailed, tx.Status)
	assert.Equal(t, 1, tx.RetryCount)
	require.NotNil(t, tx.LastError)
	assert.Equal(t, domainErrors.ErrNoAuthToken.Error(), *tx.LastError)
}

func TestEngine_CSRFTokenForwarded(t *testing.T) {
	h := newHarness(t, true, WithCSRF(testutil.NewMockTokenSource("csrf-9")))
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))

	h.engine.SyncAll(context.Background())

	reqs := h.submitter.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "csrf-9", reqs[0].CSRFToken)
}

func TestEngine_OfflineSkipsDrain(t *testing.T) {
	h := newHarness(t, false)
	h.enqueue(t, 2)

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, SkipOffline, res.Skipped)
	assert.False(t, res.Ran())
	assert.Equal(t, 0, h.submitter.Calls())
	assert.Equal(t, 2, h.facade.Snapshot().PendingCount)
}

func TestEngine_SingleFlight(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store,
		testutil.NewTestTransaction(t, "txn_1", baseTime),
		testutil.NewTestTransaction(t, "txn_2", baseTime.Add(time.Second)),
	)

	release := make(chan struct{})
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		<-release
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	var wg sync.WaitGroup
	var first Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = h.engine.SyncAll(context.Background())
	}()

	require.Eventually(t, func() bool { return h.submitter.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.engine.InFlight())
	assert.True(t, h.facade.Snapshot().Syncing)

	second := h.engine.SyncAll(context.Background())
	assert.Equal(t, SkipInProgress, second.Skipped)

	_, err := h.engine.RetryFailed(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrSyncInProgress)

	close(release)
	wg.Wait()

	assert.Equal(t, 2, first.Succeeded)
	assert.Equal(t, 2, h.submitter.Calls(), "each record submitted exactly once")
	assert.False(t, h.engine.InFlight())
	assert.False(t, h.facade.Snapshot().Syncing)
}

func TestEngine_RecordsEnqueuedDuringDrainWaitForNextDrain(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))
	h.manager.OnEnqueued(h.engine.SubmitEnqueued)

	var lateID string
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if lateID == "" {
			id, err := h.manager.Enqueue(context.Background(), testutil.SalePayload(9))
			require.NoError(t, err)
			lateID = id
		}
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	res := h.engine.SyncAll(context.Background())
	h.engine.Wait()

	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, domainQueue.StatusPending, h.get(t, lateID).Status, "opportunistic path skips while a drain holds the flag")

	res = h.engine.SyncAll(context.Background())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, lateID).Status)
}

func TestEngine_OpportunisticSubmissionOnEnqueue(t *testing.T) {
	h := newHarness(t, true)
	h.manager.OnEnqueued(h.engine.SubmitEnqueued)

	ids := h.enqueue(t, 1)
	h.engine.Wait()

	tx := h.get(t, ids[0])
	assert.Equal(t, domainQueue.StatusSynced, tx.Status)
	assert.Equal(t, 1, h.submitter.Calls())
	assert.Equal(t, 0, h.facade.Snapshot().PendingCount)
}

func TestEngine_ResumeDuringOpportunisticSubmitDrainsAfterwards(t *testing.T) {
	h := newHarness(t, true)
	h.manager.OnEnqueued(h.engine.SubmitEnqueued)

	release := make(chan struct{})
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if req.LocalID != "txn_old" {
			<-release
		}
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	ids := h.enqueue(t, 1)
	require.Eventually(t, func() bool { return h.submitter.Calls() == 1 }, time.Second, 5*time.Millisecond)

	h.monitor.Set(false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_old", baseTime.Add(-time.Hour)))
	require.Eventually(t, func() bool {
		h.monitor.Set(false)
		h.monitor.Set(true)
		return h.engine.drainRequested.Load()
	}, 2*time.Second, 20*time.Millisecond, "drain turned away while the submission holds the flag")

	close(release)
	require.Eventually(t, func() bool {
		tx, err := h.store.Get(context.Background(), "txn_old")
		return err == nil && tx.Status == domainQueue.StatusSynced
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, ids[0]).Status)

	cancel()
	require.NoError(t, <-done)
}

func TestEngine_TurnedAwayEnqueueDrainsAfterRelease(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store, testutil.NewTestTransaction(t, "txn_1", baseTime))

	release := make(chan struct{})
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if req.LocalID == "txn_1" {
			<-release
		}
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	first := make(chan Result, 1)
	go func() { first <- h.engine.SyncAll(context.Background()) }()
	require.Eventually(t, func() bool { return h.submitter.Calls() == 1 }, time.Second, 5*time.Millisecond)

	h.manager.OnEnqueued(h.engine.SubmitEnqueued)
	lateID := h.enqueue(t, 1)[0]
	assert.True(t, h.engine.drainRequested.Load())

	close(release)
	assert.Equal(t, 1, (<-first).Succeeded)
	assert.False(t, h.engine.drainRequested.Load())

	select {
	case <-h.engine.trigger:
	default:
		t.Fatal("no drain handed to Run after the flag was released")
	}
	assert.Equal(t, domainQueue.StatusPending, h.get(t, lateID).Status)
}

func TestEngine_OpportunisticSkippedOffline(t *testing.T) {
	h := newHarness(t, false)
	h.manager.OnEnqueued(h.engine.SubmitEnqueued)

	ids := h.enqueue(t, 1)
	h.engine.Wait()

	assert.Equal(t, domainQueue.StatusPending, h.get(t, ids[0]).Status)
	assert.Equal(t, 0, h.submitter.Calls())
}

func TestEngine_SkipsRecordChangedSinceSnapshot(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store,
		testutil.NewTestTransaction(t, "txn_1", baseTime),
		testutil.NewTestTransaction(t, "txn_2", baseTime.Add(time.Second)),
	)
	h.submitter.SubmitFunc = func(_ context.Context, req transport.Request) (*transport.Response, error) {
		if req.LocalID == "txn_1" {
			require.NoError(t, h.store.Store.Delete(context.Background(), "txn_2"))
		}
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, Result{Attempted: 1, Succeeded: 1}, res)
	assert.Equal(t, 1, h.submitter.Calls())
}

func TestEngine_LostClaimIsNotSubmitted(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store,
		testutil.NewTestTransaction(t, "txn_1", baseTime),
		testutil.NewTestTransaction(t, "txn_2", baseTime.Add(time.Second)),
	)
	h.store.PutFunc = func(ctx context.Context, tx *domainQueue.Transaction) error {
		if tx.LocalID == "txn_1" && tx.Status == domainQueue.StatusSyncing {
			return fmt.Errorf("claim transaction txn_1: %w", domainErrors.ErrTransactionInFlight)
		}
		return h.store.Store.Put(ctx, tx)
	}

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, h.submitter.Requests(), 1)
	assert.Equal(t, "txn_2", h.submitter.Requests()[0].LocalID)
	assert.Equal(t, domainQueue.StatusPending, h.get(t, "txn_1").Status)
}

func TestEngine_StoreReadErrorSkipsDrain(t *testing.T) {
	h := newHarness(t, true)
	h.store.ListByStatusFunc = func(context.Context, ...domainQueue.Status) ([]*domainQueue.Transaction, error) {
		return nil, errors.New("database is locked")
	}

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, SkipStoreError, res.Skipped)
	assert.False(t, h.engine.InFlight())
}

func TestEngine_RetryFailedExcludesExhaustedRecords(t *testing.T) {
	h := newHarness(t, false)
	testutil.Seed(t, h.store,
		testutil.NewFailedTransaction(t, "txn_exhausted", baseTime, 3),
		testutil.NewFailedTransaction(t, "txn_retryable", baseTime.Add(time.Second), 1),
	)

	n, err := h.engine.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exhausted := h.get(t, "txn_exhausted")
	assert.Equal(t, domainQueue.StatusFailed, exhausted.Status)
	assert.Equal(t, 3, exhausted.RetryCount)

	retryable := h.get(t, "txn_retryable")
	assert.Equal(t, domainQueue.StatusPending, retryable.Status)
	assert.Equal(t, 1, retryable.RetryCount)
	assert.Nil(t, retryable.LastError)
	assert.Equal(t, 0, h.submitter.Calls(), "offline retry does not drain")
}

func TestEngine_RetryFailedDrainsWhenOnline(t *testing.T) {
	h := newHarness(t, true)
	testutil.Seed(t, h.store, testutil.NewFailedTransaction(t, "txn_1", baseTime, 1))

	n, err := h.engine.RetryFailed(context.Background())
	require.NoError(t, err)
	h.engine.Wait()

	assert.Equal(t, 1, n)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, "txn_1").Status)
}

func TestEngine_ResetForRetry(t *testing.T) {
	h := newHarness(t, false)
	testutil.Seed(t, h.store,
		testutil.NewFailedTransaction(t, "txn_exhausted", baseTime, 3),
		testutil.NewTestTransaction(t, "txn_pending", baseTime),
	)
	ctx := context.Background()

	require.NoError(t, h.engine.ResetForRetry(ctx, "txn_exhausted"))
	tx := h.get(t, "txn_exhausted")
	assert.Equal(t, domainQueue.StatusPending, tx.Status)
	assert.Equal(t, 0, tx.RetryCount)

	assert.ErrorIs(t, h.engine.ResetForRetry(ctx, "txn_pending"), domainErrors.ErrInvalidStateTransition)
	assert.ErrorIs(t, h.engine.ResetForRetry(ctx, "txn_missing"), domainErrors.ErrTransactionNotFound)
}

func TestEngine_Recover(t *testing.T) {
	h := newHarness(t, false)
	stuck := testutil.NewTestTransaction(t, "txn_stuck", baseTime)
	require.NoError(t, stuck.MarkSyncing())
	testutil.Seed(t, h.store, stuck,
		testutil.NewSyncedTransaction(t, "txn_done", baseTime, baseTime),
		testutil.NewFailedTransaction(t, "txn_failed", baseTime, 2),
	)

	n, err := h.engine.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, domainQueue.StatusPending, h.get(t, "txn_stuck").Status)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, "txn_done").Status)
	assert.Equal(t, domainQueue.StatusFailed, h.get(t, "txn_failed").Status)
}

func TestEngine_LeaseHeldElsewhere(t *testing.T) {
	lease := testutil.NewMockLease()
	lease.AcquireFunc = func(context.Context) (bool, error) { return false, nil }
	h := newHarness(t, true, WithLease(lease))
	h.enqueue(t, 1)

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, SkipLeaseHeld, res.Skipped)
	assert.Equal(t, 0, h.submitter.Calls())
	assert.Equal(t, "Another terminal is syncing", h.facade.Snapshot().LastMessage)
}

func TestEngine_LeaseUnavailable(t *testing.T) {
	lease := testutil.NewMockLease()
	lease.AcquireFunc = func(context.Context) (bool, error) { return false, errors.New("dial tcp: connection refused") }
	h := newHarness(t, true, WithLease(lease))
	h.enqueue(t, 1)

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, SkipLeaseUnavailable, res.Skipped)
	assert.False(t, h.engine.InFlight())
}

func TestEngine_LeaseExtendedAndReleased(t *testing.T) {
	lease := testutil.NewMockLease()
	h := newHarness(t, true, WithLease(lease))
	h.enqueue(t, 3)

	res := h.engine.SyncAll(context.Background())

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 3, lease.Extends())
	assert.Equal(t, 1, lease.Releases())
	assert.False(t, lease.Held())
}

func TestEngine_LeaseLostStopsDrain(t *testing.T) {
	lease := testutil.NewMockLease()
	lease.ExtendFunc = func(context.Context) error { return domainErrors.ErrLeaseNotHeld }
	h := newHarness(t, true, WithLease(lease))
	ids := h.enqueue(t, 3)

	res := h.engine.SyncAll(context.Background())

	assert.True(t, res.Interrupted)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, ids[0]).Status)
	assert.Equal(t, domainQueue.StatusPending, h.get(t, ids[1]).Status)
}

func TestEngine_CanceledContextFinishesCurrentRecord(t *testing.T) {
	h := newHarness(t, true)
	ids := h.enqueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	h.submitter.SubmitFunc = func(subCtx context.Context, req transport.Request) (*transport.Response, error) {
		cancel()
		require.NoError(t, subCtx.Err(), "submission context outlives the caller")
		return &transport.Response{RemoteID: "srv-" + req.LocalID, StatusCode: 201}, nil
	}

	res := h.engine.SyncAll(ctx)

	assert.True(t, res.Interrupted)
	assert.Equal(t, domainQueue.StatusSynced, h.get(t, ids[0]).Status)
	assert.Equal(t, domainQueue.StatusPending, h.get(t, ids[1]).Status)
}

func TestEngine_RunDrainsOnResume(t *testing.T) {
	h := newHarness(t, false)
	ids := h.enqueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	// Run may not have subscribed yet, so keep producing transitions.
	require.Eventually(t, func() bool {
		h.monitor.Set(false)
		h.monitor.Set(true)
		tx, err := h.store.Get(context.Background(), ids[1])
		return err == nil && tx.Status == domainQueue.StatusSynced
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type cleanerFunc func(ctx context.Context, days int) (int, error)

func (f cleanerFunc) Cleanup(ctx context.Context, days int) (int, error) { return f(ctx, days) }

func TestEngine_RunCleansUpOnStart(t *testing.T) {
	calls := make(chan int, 4)
	cleaner := cleanerFunc(func(_ context.Context, days int) (int, error) {
		calls <- days
		return 0, nil
	})
	h := newHarness(t, false, WithCleanup(cleaner, 7, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	select {
	case days := <-calls:
		assert.Equal(t, 7, days)
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestResult_Message(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Skipped: SkipInProgress}, "Sync already in progress"},
		{Result{Skipped: SkipOffline}, "Offline, sync deferred"},
		{Result{}, "Nothing to sync"},
		{Result{Attempted: 1, Succeeded: 1}, "Synced 1 transaction"},
		{Result{Attempted: 4, Succeeded: 3, Failed: 1}, "Synced 3 of 4 transactions (1 failed)"},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.want, " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Message())
		})
	}
}
