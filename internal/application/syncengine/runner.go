package syncengine

import (
	"context"
	"time"
)

// Trigger asks Run for a drain. Requests coalesce while one is pending.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run drives drains until ctx ends: on every offline to online
// transition, on the sync interval, and once at start when online. It also
// runs cleanup on its own interval. Run returns after the current drain
// and any background submissions finish.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe := e.conn.OnResume(e.Trigger)
	defer unsubscribe()

	var syncTick <-chan time.Time
	if e.syncInterval > 0 {
		t := time.NewTicker(e.syncInterval)
		defer t.Stop()
		syncTick = t.C
	}

	var cleanupTick <-chan time.Time
	if e.cleaner != nil && e.cleanupInterval > 0 {
		t := time.NewTicker(e.cleanupInterval)
		defer t.Stop()
		cleanupTick = t.C
		e.runCleanup(ctx)
	}

	if e.conn.IsOnline() {
		e.Trigger()
	}

	e.logger.Info().
		Dur("sync_interval", e.syncInterval).
		Dur("cleanup_interval", e.cleanupInterval).
		Msg("sync engine started")

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.logger.Info().Msg("sync engine stopped")
			return nil
		case <-e.trigger:
			e.syncAll(ctx, TriggerReconnect)
		case <-syncTick:
			e.syncAll(ctx, TriggerPeriodic)
		case <-cleanupTick:
			e.runCleanup(ctx)
		}
	}
}

func (e *Engine) runCleanup(ctx context.Context) {
	deleted, err := e.cleaner.Cleanup(ctx, e.cleanupDays)
	if err != nil {
		e.logger.Error().Err(err).Msg("cleanup failed")
		return
	}
	if deleted > 0 {
		e.logger.Info().Int("deleted", deleted).Int("older_than_days", e.cleanupDays).Msg("old synced transactions removed")
	}
}
