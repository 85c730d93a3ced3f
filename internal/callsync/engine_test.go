package callsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"callmon-api/internal/domain"
	"callmon-api/internal/observability/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePBX returns scripted responses and counts fetches.
type fakePBX struct {
	mu         sync.Mutex
	history    []domain.Call
	historyErr error
	extensions []domain.Extension
	extErr     error
	fetches    int
}

func (f *fakePBX) FetchCallHistory(ctx context.Context, limit int) ([]domain.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]domain.Call, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakePBX) FetchExtensions(ctx context.Context) ([]domain.Extension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extErr != nil {
		return nil, f.extErr
	}
	out := make([]domain.Extension, len(f.extensions))
	copy(out, f.extensions)
	return out, nil
}

func (f *fakePBX) set(history []domain.Call, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = history
	f.historyErr = err
}

type recordingObserver struct {
	mu              sync.Mutex
	cycles          int
	failures        int
	inconsistencies int
}

func (o *recordingObserver) CycleCompleted(ctx context.Context, d time.Duration, err error, snap *Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) InconsistenciesObserved(ctx context.Context, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inconsistencies += n
}

func testEngine(t *testing.T, pbx PBXSource, opts ...Option) *Engine {
	t.Helper()
	log, err := logger.New("callsync-test", "error")
	require.NoError(t, err)
	return New(pbx, Config{Interval: time.Hour, HistoryLimit: 50, Retained: 5}, log, opts...)
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

var testNow = time.Date(2026, time.August, 27, 15, 0, 0, 0, time.UTC)

func inboundActive(id, caller string, at time.Time) domain.Call {
	return domain.Call{
		ID:         id,
		Direction:  domain.DirectionInbound,
		Caller:     caller,
		Recipient:  "104",
		Status:     domain.CallActive,
		OccurredAt: at,
	}
}

func TestEngine_ZeroSnapshotBeforeFirstCycle(t *testing.T) {
	e := testEngine(t, &fakePBX{})

	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Calls)
	assert.Empty(t, snap.Active)
	assert.Zero(t, snap.Cycles)
}

func TestEngine_ActiveSubsetScenario(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))

	e.RunCycle(context.Background())

	snap := e.Snapshot()
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "c1", snap.Active[0].ID)
	assert.Equal(t, domain.CallActive, snap.Active[0].Status)
	assert.Equal(t, testNow, snap.SyncedAt)
	assert.Empty(t, snap.LastError)
}

func TestEngine_IdempotentCycles(t *testing.T) {
	d := int64(33)
	completed := inboundActive("c2", "+33611113333", testNow.Add(-time.Hour))
	completed.Status = domain.CallCompleted
	completed.DurationSeconds = &d

	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
		completed,
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))

	e.RunCycle(context.Background())
	first := e.Snapshot()

	e.RunCycle(context.Background())
	second := e.Snapshot()

	assert.Equal(t, first.Calls, second.Calls)
	assert.Equal(t, first.Active, second.Active)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Cycles+1, second.Cycles)
}

func TestEngine_ActiveToCompletedRoundTrip(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))
	e.RunCycle(context.Background())

	d := int64(77)
	done := inboundActive("c1", "+33611112222", testNow.Add(-time.Minute))
	done.Status = domain.CallCompleted
	done.DurationSeconds = &d
	pbx.set([]domain.Call{done}, nil)
	e.RunCycle(context.Background())

	snap := e.Snapshot()
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, domain.CallCompleted, snap.Calls[0].Status)
	require.NotNil(t, snap.Calls[0].DurationSeconds)
	assert.Equal(t, int64(77), *snap.Calls[0].DurationSeconds)
	assert.Empty(t, snap.Active)

	// A stale re-observation as active must not revert it.
	pbx.set([]domain.Call{inboundActive("c1", "+33611112222", testNow.Add(-time.Minute))}, nil)
	e.RunCycle(context.Background())
	assert.Equal(t, domain.CallCompleted, e.Snapshot().Calls[0].Status)
}

func TestEngine_FailedCycleKeepsPreviousSnapshot(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	obs := &recordingObserver{}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)), WithObserver(obs))

	e.RunCycle(context.Background())
	good := e.Snapshot()

	pbx.set(nil, domain.ErrUpstreamUnavailable)
	e.RunCycle(context.Background())

	snap := e.Snapshot()
	assert.Equal(t, good.Calls, snap.Calls)
	assert.Equal(t, good.Active, snap.Active)
	assert.Equal(t, good.Stats, snap.Stats)
	assert.Equal(t, good.SyncedAt, snap.SyncedAt)
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, 1, obs.failures)

	// Recovery clears the error.
	pbx.set(good.Calls, nil)
	e.RunCycle(context.Background())
	assert.Empty(t, e.Snapshot().LastError)
}

func TestEngine_ExtensionFetchFailureDoesNotFailCycle(t *testing.T) {
	pbx := &fakePBX{
		history:    []domain.Call{inboundActive("c1", "+33611112222", testNow.Add(-time.Minute))},
		extensions: []domain.Extension{{ID: "e1", Number: "104", Status: domain.ExtensionAvailable}},
	}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))
	e.RunCycle(context.Background())
	require.Len(t, e.Snapshot().Extensions, 1)

	pbx.mu.Lock()
	pbx.extErr = domain.ErrUpstreamUnavailable
	pbx.mu.Unlock()
	e.RunCycle(context.Background())

	snap := e.Snapshot()
	assert.Empty(t, snap.LastError)
	// Previous extension view is kept.
	assert.Len(t, snap.Extensions, 1)
}

func TestEngine_AttachTicket(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))
	e.RunCycle(context.Background())

	require.NoError(t, e.AttachTicket(context.Background(), "c1", "T-1"))

	snap := e.Snapshot()
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, "T-1", snap.Calls[0].TicketID)

	// Second attachment is rejected, the first link stands.
	err := e.AttachTicket(context.Background(), "c1", "T-2")
	assert.ErrorIs(t, err, domain.ErrAlreadyLinked)
	assert.Equal(t, "T-1", e.Snapshot().Calls[0].TicketID)

	assert.ErrorIs(t, e.AttachTicket(context.Background(), "ghost", "T-3"), domain.ErrNotFound)
	assert.ErrorIs(t, e.AttachTicket(context.Background(), "", "T-3"), domain.ErrInvalidArgument)
}

func TestEngine_TicketSurvivesResync(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))
	e.RunCycle(context.Background())
	require.NoError(t, e.AttachTicket(context.Background(), "c1", "T-1"))

	// Resyncs in any order never lose the link.
	for i := 0; i < 3; i++ {
		e.RunCycle(context.Background())
		assert.Equal(t, "T-1", e.Snapshot().Calls[0].TicketID)
	}
}

func TestEngine_ConflictingTerminalStates(t *testing.T) {
	missed := inboundActive("c1", "+33611112222", testNow.Add(-time.Hour))
	missed.Status = domain.CallMissed

	pbx := &fakePBX{history: []domain.Call{missed}}
	obs := &recordingObserver{}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)), WithObserver(obs))
	e.RunCycle(context.Background())

	d := int64(10)
	completed := missed
	completed.Status = domain.CallCompleted
	completed.DurationSeconds = &d
	pbx.set([]domain.Call{completed}, nil)
	e.RunCycle(context.Background())

	assert.Equal(t, domain.CallMissed, e.Snapshot().Calls[0].Status)
	assert.Equal(t, 1, obs.inconsistencies)
}

func TestEngine_RetentionEvictsOldest(t *testing.T) {
	history := make([]domain.Call, 0, 8)
	for i := 0; i < 8; i++ {
		history = append(history, inboundActive(
			string(rune('a'+i)),
			"+33611112222",
			testNow.Add(-time.Duration(i)*time.Minute),
		))
	}
	pbx := &fakePBX{history: history}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow))) // Retained: 5

	e.RunCycle(context.Background())

	snap := e.Snapshot()
	assert.Len(t, snap.Calls, 5)
	// Most recent first; the three oldest were evicted.
	assert.Equal(t, "a", snap.Calls[0].ID)
	assert.Equal(t, "e", snap.Calls[4].ID)

	_, ok := e.Call("h")
	assert.False(t, ok)
}

func TestEngine_StatsRecomputedEachCycle(t *testing.T) {
	pbx := &fakePBX{history: []domain.Call{
		inboundActive("c1", "+33611112222", testNow.Add(-time.Minute)),
	}}
	e := testEngine(t, pbx, WithClock(fixedClock(testNow)))
	e.RunCycle(context.Background())
	assert.Equal(t, 1, e.Snapshot().Stats.Today.Total)

	d := int64(5)
	done := inboundActive("c1", "+33611112222", testNow.Add(-time.Minute))
	done.Status = domain.CallMissed
	done.DurationSeconds = &d
	pbx.set([]domain.Call{done}, nil)
	e.RunCycle(context.Background())

	s := e.Snapshot().Stats
	assert.Equal(t, 1, s.Today.Total)
	assert.Equal(t, 1, s.Today.Missed)
	assert.Equal(t, 1, s.Week.Missed)
}

func TestEngine_RequestRefreshCoalesces(t *testing.T) {
	e := testEngine(t, &fakePBX{})

	// Many requests while none has been consumed collapse into one.
	for i := 0; i < 10; i++ {
		e.RequestRefresh()
	}
	assert.Len(t, e.refreshCh, 1)
}

func TestEngine_RunHonorsCancellationAndRefresh(t *testing.T) {
	pbx := &fakePBX{}
	e := testEngine(t, pbx)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// Initial cycle plus one explicit refresh.
	e.RequestRefresh()
	assert.Eventually(t, func() bool {
		pbx.mu.Lock()
		defer pbx.mu.Unlock()
		return pbx.fetches >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}
}
