// Package syncengine drains the local queue to the remote ledger. One
// in-flight flag guards every path that claims records, so a record is
// never submitted by two code paths at once.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	domainQueue "github.com/cassiomorais/posqueue/internal/domain/queue"
	"github.com/cassiomorais/posqueue/internal/infrastructure/credentials"
	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	"github.com/cassiomorais/posqueue/internal/infrastructure/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Triggers label what started a submission.
const (
	TriggerManual        = "manual"
	TriggerReconnect     = "reconnect"
	TriggerPeriodic      = "periodic"
	TriggerOpportunistic = "opportunistic"
	TriggerRetry         = "retry"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSynced
	outcomeFailed
)

type Engine struct {
	store     domainQueue.Store
	submitter Submitter
	conn      Connectivity
	bearer    credentials.TokenSource
	csrf      credentials.TokenSource
	status    StatusSink
	lease     Lease
	metrics   *observability.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	maxRetries int

	syncInterval    time.Duration
	cleaner         Cleaner
	cleanupDays     int
	cleanupInterval time.Duration

	inFlight atomic.Bool
	// drainRequested is set when a drain or an enqueued record was turned
	// away by the in-flight flag; the holder triggers a drain on release.
	drainRequested atomic.Bool
	wg             sync.WaitGroup
	trigger        chan struct{}
}

type Option func(*Engine)

func WithCSRF(src credentials.TokenSource) Option {
	return func(e *Engine) { e.csrf = src }
}

func WithStatus(s StatusSink) Option {
	return func(e *Engine) { e.status = s }
}

// WithLease makes every drain hold l for its whole run.
func WithLease(l Lease) Option {
	return func(e *Engine) { e.lease = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithSyncInterval enables a periodic drain in Run. Zero disables it.
func WithSyncInterval(d time.Duration) Option {
	return func(e *Engine) { e.syncInterval = d }
}

// WithCleanup runs c every interval from Run. A zero interval disables it.
func WithCleanup(c Cleaner, olderThanDays int, interval time.Duration) Option {
	return func(e *Engine) {
		e.cleaner = c
		e.cleanupDays = olderThanDays
		e.cleanupInterval = interval
	}
}

func New(store domainQueue.Store, submitter Submitter, conn Connectivity, bearer credentials.TokenSource, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		submitter:  submitter,
		conn:       conn,
		bearer:     bearer,
		status:     noopStatus{},
		logger:     zerolog.Nop(),
		tracer:     observability.Tracer(),
		now:        time.Now,
		maxRetries: domainQueue.DefaultMaxRetries,
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxRetries is the retry bound applied to failed records.
func (e *Engine) MaxRetries() int {
	return e.maxRetries
}

// InFlight reports whether a drain or another claiming operation is running.
func (e *Engine) InFlight() bool {
	return e.inFlight.Load()
}

// Wait blocks until background submissions started by the engine finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// SyncAll drains every eligible record once, oldest first, one at a time.
// A second call while a drain runs returns immediately with SkipInProgress
// and a follow-up drain is scheduled for Run once the flag is released.
// Records enqueued during the run are left for that drain.
func (e *Engine) SyncAll(ctx context.Context) Result {
	return e.syncAll(ctx, TriggerManual)
}

func (e *Engine) syncAll(ctx context.Context, trigger string) Result {
	if !e.conn.IsOnline() {
		return e.skip(SkipOffline, true)
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		e.requestDrain()
		return e.skip(SkipInProgress, false)
	}
	defer e.releaseFlight()

	if reason := e.acquireLease(ctx); reason != SkipNone {
		return e.skip(reason, true)
	}
	defer e.releaseLease(ctx)

	start := e.now()
	e.status.SetSyncing(true)
	defer e.status.SetSyncing(false)

	snapshot, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to read work set")
		return e.skip(SkipStoreError, true)
	}

	log := e.logger.With().Str("trigger", trigger).Logger()
	log.Info().Int("records", len(snapshot)).Msg("drain started")

	// Records run to a terminal status even if ctx ends mid-submission.
	recordCtx := context.WithoutCancel(ctx)

	var res Result
	for _, localID := range snapshot {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		switch e.submitOne(recordCtx, localID, trigger) {
		case outcomeSynced:
			res.Attempted++
			res.Succeeded++
		case outcomeFailed:
			res.Attempted++
			res.Failed++
		}

		if e.lease != nil {
			if err := e.lease.Extend(recordCtx); err != nil {
				log.Warn().Err(err).Msg("drain lease lost, stopping")
				res.Interrupted = true
				break
			}
		}
	}

	e.publishCount(recordCtx)
	e.status.SetMessage(res.Message())
	if e.metrics != nil {
		e.metrics.DrainsTotal.WithLabelValues("completed").Inc()
		e.metrics.DrainDuration.Observe(e.now().Sub(start).Seconds())
	}
	log.Info().
		Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Bool("interrupted", res.Interrupted).
		Dur("elapsed", e.now().Sub(start)).
		Msg("drain finished")
	return res
}

// snapshot returns the ids of eligible records in creation order.
func (e *Engine) snapshot(ctx context.Context) ([]string, error) {
	records, err := e.store.ListByStatus(ctx, domainQueue.StatusPending, domainQueue.StatusFailed)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.Eligible(e.maxRetries) {
			ids = append(ids, r.LocalID)
		}
	}
	return ids, nil
}

// SubmitEnqueued is the enqueue hook. When online and nothing else holds
// the in-flight flag it submits the record on a background goroutine;
// otherwise the record stays pending for the next drain.
func (e *Engine) SubmitEnqueued(tx *domainQueue.Transaction) {
	if !e.conn.IsOnline() {
		return
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Debug().Str("local_id", tx.LocalID).Msg("drain in flight, leaving record for the next drain")
		e.requestDrain()
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.releaseFlight()

		ctx := context.Background()
		if reason := e.acquireLease(ctx); reason != SkipNone {
			return
		}
		defer e.releaseLease(ctx)

		switch e.submitOne(ctx, tx.LocalID, TriggerOpportunistic) {
		case outcomeSynced:
			e.status.SetMessage("Transaction synced")
		case outcomeFailed:
			e.status.SetMessage("Transaction queued, sync failed")
		}
		e.publishCount(ctx)
	}()
}

// requestDrain records that work was turned away by the in-flight flag. The
// flag is checked again afterwards in case the holder released it first.
func (e *Engine) requestDrain() {
	e.drainRequested.Store(true)
	if !e.inFlight.Load() && e.drainRequested.Swap(false) {
		e.Trigger()
	}
}

// releaseFlight clears the in-flight flag and hands any drain requested
// meanwhile to Run.
func (e *Engine) releaseFlight() {
	e.inFlight.Store(false)
	if e.drainRequested.Swap(false) {
		e.Trigger()
	}
}

// submitOne claims one record and drives it to synced or failed. The
// record is re-read first so a stale snapshot entry is never resubmitted.
func (e *Engine) submitOne(ctx context.Context, localID, trigger string) outcome {
	log := e.logger.With().Str("local_id", localID).Str("trigger", trigger).Logger()

	rec, err := e.store.Get(ctx, localID)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrTransactionNotFound) {
			log.Error().Err(err).Msg("failed to load record")
		}
		return outcomeSkipped
	}
	if !rec.Eligible(e.maxRetries) {
		return outcomeSkipped
	}

	if err := rec.MarkSyncing(); err != nil {
		log.Error().Err(err).Str("status", rec.Status.String()).Msg("cannot claim record")
		return outcomeSkipped
	}
	if err := e.store.Put(ctx, rec); err != nil {
		if errors.Is(err, domainErrors.ErrTransactionInFlight) {
			log.Debug().Msg("record claimed by another terminal")
			return outcomeSkipped
		}
		log.Error().Err(err).Msg("failed to persist claim, leaving record untouched")
		return outcomeSkipped
	}

	ctx, span := e.tracer.Start(ctx, "syncengine.submit", trace.WithAttributes(
		attribute.String("posqueue.local_id", localID),
		attribute.String("posqueue.trigger", trigger),
		attribute.Int("posqueue.retry_count", rec.RetryCount),
	))
	defer span.End()

	token, ok := tokenFrom(e.bearer)
	if !ok {
		return e.fail(ctx, span, log, rec, trigger, domainErrors.ErrNoAuthToken)
	}
	csrf, _ := tokenFrom(e.csrf)

	start := e.now()
	resp, err := e.submitter.Submit(ctx, transport.Request{
		LocalID:     rec.LocalID,
		Payload:     rec.Payload,
		BearerToken: token,
		CSRFToken:   csrf,
	})
	elapsed := e.now().Sub(start)
	if err != nil {
		e.observeSubmission("failed", trigger, elapsed)
		return e.fail(ctx, span, log, rec, trigger, err)
	}

	if err := rec.MarkSynced(resp.RemoteID, e.now()); err != nil {
		log.Error().Err(err).Msg("cannot mark record synced")
		return outcomeSkipped
	}
	if err := e.store.Put(ctx, rec); err != nil {
		// Left in syncing; startup recovery requeues it and the server
		// dedupes on the idempotency key.
		log.Error().Err(err).Str("remote_id", resp.RemoteID).Msg("failed to persist synced record")
	}
	e.observeSubmission("synced", trigger, elapsed)
	span.SetAttributes(attribute.String("posqueue.remote_id", resp.RemoteID))
	log.Info().Str("remote_id", resp.RemoteID).Dur("elapsed", elapsed).Msg("transaction synced")
	return outcomeSynced
}

func (e *Engine) fail(ctx context.Context, span trace.Span, log zerolog.Logger, rec *domainQueue.Transaction, trigger string, cause error) outcome {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if err := rec.MarkFailed(cause.Error()); err != nil {
		log.Error().Err(err).Msg("cannot mark record failed")
		return outcomeSkipped
	}
	if err := e.store.Put(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to persist failed record")
	}
	if errors.Is(cause, domainErrors.ErrNoAuthToken) {
		e.observeSubmission("no_auth", trigger, 0)
	}
	log.Warn().Err(cause).Int("retry_count", rec.RetryCount).Msg("transaction sync failed")
	return outcomeFailed
}

func (e *Engine) acquireLease(ctx context.Context) SkipReason {
	if e.lease == nil {
		return SkipNone
	}
	ok, err := e.lease.Acquire(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to acquire drain lease")
		return SkipLeaseUnavailable
	}
	if !ok {
		return SkipLeaseHeld
	}
	return SkipNone
}

func (e *Engine) releaseLease(ctx context.Context) {
	if e.lease == nil {
		return
	}
	if err := e.lease.Release(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn().Err(err).Msg("failed to release drain lease")
	}
}

func (e *Engine) skip(reason SkipReason, announce bool) Result {
	res := Result{Skipped: reason}
	if announce {
		e.status.SetMessage(res.Message())
	}
	if e.metrics != nil {
		e.metrics.DrainsTotal.WithLabelValues(string(reason)).Inc()
	}
	e.logger.Debug().Str("reason", string(reason)).Msg("drain skipped")
	return res
}

func (e *Engine) observeSubmission(result, trigger string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SubmissionsTotal.WithLabelValues(trigger, result).Inc()
	if elapsed > 0 {
		e.metrics.SubmissionDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	}
}

func (e *Engine) publishCount(ctx context.Context) {
	unsynced, err := e.store.ListByStatus(ctx, domainQueue.StatusPending, domainQueue.StatusSyncing, domainQueue.StatusFailed)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to count pending transactions")
		return
	}
	e.status.SetPendingCount(len(unsynced))
	e.metrics.SetQueueDepth(len(unsynced))
}

func tokenFrom(src credentials.TokenSource) (string, bool) {
	if src == nil {
		return "", false
	}
	return src.Token()
}
