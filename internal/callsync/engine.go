// Package callsync owns the in-process call log. One background engine
// polls the PBX on a fixed cadence, merges history into the log,
// recomputes the active subset and the statistics, and publishes the
// result as an immutable snapshot. All other components read snapshots
// or hand mutation requests to the engine; nothing else touches the
// log.
package callsync

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"callmon-api/internal/domain"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/stats"

	"go.uber.org/zap"
)

// PBXSource is the slice of the PBX adapter the engine polls.
type PBXSource interface {
	FetchCallHistory(ctx context.Context, limit int) ([]domain.Call, error)
	FetchExtensions(ctx context.Context) ([]domain.Extension, error)
}

// Observer receives cycle outcomes for metrics. Implementations must
// not block.
type Observer interface {
	CycleCompleted(ctx context.Context, d time.Duration, err error, snap *Snapshot)
	InconsistenciesObserved(ctx context.Context, n int)
}

// Snapshot is the immutable triple (plus bookkeeping) published after
// every cycle. Readers always see one fully-formed version; a snapshot
// is never mutated after publication.
type Snapshot struct {
	// Calls is the retained log, most recent first.
	Calls []domain.Call `json:"calls"`
	// Active is the subset of Calls still in progress.
	Active []domain.Call `json:"active"`
	// Extensions is the latest observed extension snapshot.
	Extensions []domain.Extension `json:"extensions"`
	Stats      domain.CallStatistics `json:"stats"`
	// SyncedAt is the time of the last successful merge.
	SyncedAt time.Time `json:"syncedAt"`
	Cycles   uint64    `json:"cycles"`
	// LastError is empty when the most recent cycle succeeded.
	LastError string `json:"lastError,omitempty"`
}

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Engine is the call synchronizer.
type Engine struct {
	pbx      PBXSource
	log      *logger.Logger
	observer Observer
	clock    Clock

	interval     time.Duration
	historyLimit int
	retained     int

	// mu serializes every mutation of the authoritative state; the
	// published snapshot is swapped atomically so readers never take it.
	mu         sync.Mutex
	calls      map[string]domain.Call
	extensions []domain.Extension
	stats      domain.CallStatistics
	syncedAt   time.Time
	cycles     uint64

	snap      atomic.Pointer[Snapshot]
	refreshCh chan struct{}
}

// Config bounds the engine's polling behavior.
type Config struct {
	// Interval is the steady-state polling cadence.
	Interval time.Duration
	// HistoryLimit bounds the fetched history payload per cycle.
	HistoryLimit int
	// Retained is the maximum number of calls kept in the log; older
	// entries are evicted (local cache eviction only, the PBX keeps
	// the source of truth).
	Retained int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Used by tests to pin statistics
// windows.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an Engine and publishes its empty zero snapshot, so
// readers have a well-formed value before the first cycle completes.
func New(pbx PBXSource, cfg Config, log *logger.Logger, opts ...Option) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if cfg.Retained <= 0 {
		cfg.Retained = 500
	}

	e := &Engine{
		pbx:          pbx,
		log:          log,
		clock:        time.Now,
		interval:     cfg.Interval,
		historyLimit: cfg.HistoryLimit,
		retained:     cfg.Retained,
		calls:        make(map[string]domain.Call),
		refreshCh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.snap.Store(&Snapshot{Calls: []domain.Call{}, Active: []domain.Call{}, Extensions: []domain.Extension{}})
	return e
}

// Run drives the polling loop until ctx is cancelled. Cycles are
// strictly sequential: the loop is a single goroutine, and a tick that
// fires while a cycle is still running is dropped, not queued.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info(ctx, "call synchronizer started",
		logger.Module("callsync"),
		logger.Action("start"),
		zap.Duration("interval", e.interval),
		zap.Int("history_limit", e.historyLimit),
		zap.Int("retained", e.retained),
	)

	e.RunCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info(context.Background(), "call synchronizer stopped",
				logger.Module("callsync"),
				logger.Action("stop"),
			)
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		case <-e.refreshCh:
			e.RunCycle(ctx)
		}

		// Drop a tick that queued up behind a slow cycle; the next
		// scheduled one is soon enough.
		select {
		case <-ticker.C:
		default:
		}
	}
}

// RequestRefresh asks for an out-of-cycle sync. Idempotent: requests
// arriving while one is already pending coalesce into it.
func (e *Engine) RequestRefresh() {
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recently published state. Never blocks,
// never returns nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Extensions returns the latest observed extension set.
func (e *Engine) Extensions() []domain.Extension {
	return e.snap.Load().Extensions
}

// Call returns the logged call with the given identifier, if retained.
func (e *Engine) Call(id string) (domain.Call, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[id]
	return c, ok
}

// AttachTicket links a ticket identifier to a call, applied against
// whatever log state is current at application time (not against a
// snapshot captured earlier). A call that already carries a ticket is
// never overwritten.
func (e *Engine) AttachTicket(ctx context.Context, callID, ticketID string) error {
	if callID == "" || ticketID == "" {
		return domain.ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.calls[callID]
	if !ok {
		return domain.ErrNotFound
	}
	if c.TicketID != "" {
		return domain.ErrAlreadyLinked
	}

	c.TicketID = ticketID
	e.calls[callID] = c
	e.publishLocked(e.Snapshot().LastError)

	e.log.Info(ctx, "ticket linked to call",
		logger.Module("callsync"),
		logger.Action("attach_ticket"),
		zap.String("call_id", callID),
		zap.String("ticket_id", ticketID),
	)
	return nil
}

// RunCycle executes one fetch-merge-aggregate-publish sequence. A
// failed cycle leaves the previously published data intact, records
// the error on the snapshot and returns; the next cycle retries
// independently (the merge is idempotent, so at-least-once is safe).
func (e *Engine) RunCycle(ctx context.Context) {
	start := e.clock()

	history, err := e.pbx.FetchCallHistory(ctx, e.historyLimit)
	if err != nil {
		e.failCycle(ctx, start, err)
		return
	}

	// Extensions are advisory; a failed extension fetch degrades the
	// extension view but must not discard the fetched call history.
	exts, extErr := e.pbx.FetchExtensions(ctx)
	if extErr != nil {
		e.log.Warn(ctx, "extension fetch failed, keeping previous snapshot",
			logger.Module("callsync"),
			logger.Action("cycle"),
			zap.Error(extErr),
		)
	}

	e.mu.Lock()
	res := mergeHistory(e.calls, history)
	evicted := e.pruneLocked()

	if extErr == nil {
		e.extensions = exts
	}

	newStats, statsErr := stats.Aggregate(e.callsLocked(), start)
	if statsErr == nil {
		e.stats = newStats
	}

	e.cycles++
	e.syncedAt = start
	snap := e.publishLocked("")
	e.mu.Unlock()

	if statsErr != nil {
		// Defensive: the adapter guarantees timestamps, so this is a
		// bug report, not a flow we expect.
		e.log.Error(ctx, "statistics aggregation failed, keeping previous statistics",
			logger.Module("callsync"),
			logger.Action("cycle"),
			zap.Error(statsErr),
		)
	}

	if res.inconsistent > 0 {
		e.log.Warn(ctx, "conflicting terminal statuses observed, keeping first observation",
			logger.Module("callsync"),
			logger.Action("data_inconsistency"),
			zap.Strings("call_ids", res.inconsistentIDs),
		)
		if e.observer != nil {
			e.observer.InconsistenciesObserved(ctx, res.inconsistent)
		}
	}

	elapsed := e.clock().Sub(start)
	e.log.Info(ctx, "sync cycle completed",
		logger.Module("callsync"),
		logger.Action("cycle"),
		zap.Int("fetched", len(history)),
		zap.Int("added", res.added),
		zap.Int("updated", res.updated),
		zap.Int("evicted", evicted),
		zap.Int("retained", len(snap.Calls)),
		zap.Int("active", len(snap.Active)),
		zap.Duration("elapsed", elapsed),
	)

	if e.observer != nil {
		e.observer.CycleCompleted(ctx, elapsed, nil, snap)
	}
}

func (e *Engine) failCycle(ctx context.Context, start time.Time, err error) {
	e.mu.Lock()
	e.cycles++
	snap := e.publishLocked(err.Error())
	e.mu.Unlock()

	e.log.Error(ctx, "sync cycle failed, keeping previous snapshot",
		logger.Module("callsync"),
		logger.Action("cycle"),
		zap.Error(err),
	)

	if e.observer != nil {
		e.observer.CycleCompleted(ctx, e.clock().Sub(start), err, snap)
	}
}

// publishLocked rebuilds and swaps in a fresh snapshot from the
// current authoritative state. Callers must hold e.mu.
func (e *Engine) publishLocked(lastError string) *Snapshot {
	calls := e.callsLocked()

	active := make([]domain.Call, 0)
	for _, c := range calls {
		if c.Status == domain.CallActive {
			active = append(active, c)
		}
	}

	exts := make([]domain.Extension, len(e.extensions))
	copy(exts, e.extensions)

	snap := &Snapshot{
		Calls:      calls,
		Active:     active,
		Extensions: exts,
		Stats:      e.stats,
		SyncedAt:   e.syncedAt,
		Cycles:     e.cycles,
		LastError:  lastError,
	}
	e.snap.Store(snap)
	return snap
}

// callsLocked returns the log as a fresh slice, most recent first.
// Callers must hold e.mu.
func (e *Engine) callsLocked() []domain.Call {
	calls := make([]domain.Call, 0, len(e.calls))
	for _, c := range e.calls {
		calls = append(calls, c)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].OccurredAt.Equal(calls[j].OccurredAt) {
			return calls[i].ID < calls[j].ID
		}
		return calls[i].OccurredAt.After(calls[j].OccurredAt)
	})
	return calls
}

// pruneLocked evicts the oldest entries beyond the retention bound.
// Callers must hold e.mu.
func (e *Engine) pruneLocked() int {
	if len(e.calls) <= e.retained {
		return 0
	}

	calls := e.callsLocked()
	evicted := 0
	for _, c := range calls[e.retained:] {
		delete(e.calls, c.ID)
		evicted++
	}
	return evicted
}
