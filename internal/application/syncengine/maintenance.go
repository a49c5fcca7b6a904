package syncengine

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
)

// RetryFailed moves every failed record that still has retries left back
// to pending, then starts a drain in the background if online. Records at
// the bound are left alone; ResetForRetry is the override for those.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return 0, domainErrors.ErrSyncInProgress
	}
	requeued, err := e.requeueFailed(ctx)
	e.releaseFlight()
	if err != nil {
		return requeued, err
	}

	e.logger.Info().Int("requeued", requeued).Msg("failed transactions requeued")
	e.publishCount(ctx)
	if requeued > 0 {
		e.drainInBackground(ctx, TriggerRetry)
	}
	return requeued, nil
}

func (e *Engine) requeueFailed(ctx context.Context) (int, error) {
	failed, err := e.store.ListByStatus(ctx, domainQueue.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("list failed transactions: %w", err)
	}

	requeued := 0
	for _, tx := range failed {
		if err := tx.Requeue(e.maxRetries); err != nil {
			if errors.Is(err, domainErrors.ErrMaxRetriesExceeded) {
				continue
			}
			return requeued, err
		}
		if err := e.store.Put(ctx, tx); err != nil {
			return requeued, fmt.Errorf("requeue %s: %w", tx.LocalID, err)
		}
		requeued++
	}
	return requeued, nil
}

// ResetForRetry returns one failed record to pending with its retry count
// zeroed, regardless of how many attempts it has used.
func (e *Engine) ResetForRetry(ctx context.Context, localID string) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return domainErrors.ErrSyncInProgress
	}
	err := e.reset(ctx, localID)
	e.releaseFlight()
	if err != nil {
		return err
	}

	e.logger.Info().Str("local_id", localID).Msg("transaction reset for retry")
	e.publishCount(ctx)
	e.drainInBackground(ctx, TriggerRetry)
	return nil
}

func (e *Engine) reset(ctx context.Context, localID string) error {
	tx, err := e.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	if err := tx.ResetRetries(); err != nil {
		return err
	}
	return e.store.Put(ctx, tx)
}

// Recover requeues records left in syncing by an interrupted process. It
// runs once at startup, before any drain.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return 0, domainErrors.ErrSyncInProgress
	}
	defer e.releaseFlight()

	stuck, err := e.store.ListByStatus(ctx, domainQueue.StatusSyncing)
	if err != nil {
		return 0, fmt.Errorf("list interrupted transactions: %w", err)
	}

	recovered := 0
	for _, tx := range stuck {
		if err := tx.Recover(); err != nil {
			return recovered, err
		}
		if err := e.store.Put(ctx, tx); err != nil {
			return recovered, fmt.Errorf("recover %s: %w", tx.LocalID, err)
		}
		recovered++
		e.logger.Warn().Str("local_id", tx.LocalID).Msg("interrupted submission returned to pending")
	}
	if e.metrics != nil {
		e.metrics.RecoveredTotal.Add(float64(recovered))
	}
	return recovered, nil
}

func (e *Engine) drainInBackground(ctx context.Context, trigger string) {
	if !e.conn.IsOnline() {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.syncAll(context.WithoutCancel(ctx), trigger)
	}()
}
