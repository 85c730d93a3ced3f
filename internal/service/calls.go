package service

import (
	"context"

	"callmon-api/internal/callsync"
	"callmon-api/internal/domain"
	"callmon-api/internal/observability/logger"
)

// CallDetailFetcher is the slice of the PBX adapter the read service
// needs for ad-hoc lookups.
type CallDetailFetcher interface {
	FetchCallDetail(ctx context.Context, callID string) (domain.Call, error)
	FetchExtensions(ctx context.Context) ([]domain.Extension, error)
}

// SnapshotSource publishes the engine's current state.
type SnapshotSource interface {
	Snapshot() *callsync.Snapshot
	RequestRefresh()
}

// CallService serves the read side of the monitoring surface: the
// published snapshot, on-demand call detail and the extension list.
type CallService struct {
	engine SnapshotSource
	pbx    CallDetailFetcher
	log    *logger.Logger
}

// NewCallService creates a CallService.
func NewCallService(engine SnapshotSource, pbx CallDetailFetcher, log *logger.Logger) *CallService {
	return &CallService{engine: engine, pbx: pbx, log: log}
}

// Snapshot returns the most recently published state. Non-blocking.
func (s *CallService) Snapshot() *callsync.Snapshot {
	return s.engine.Snapshot()
}

// RequestRefresh schedules an out-of-cycle sync. Idempotent while one
// is pending.
func (s *CallService) RequestRefresh() {
	s.engine.RequestRefresh()
}

// Detail fetches one call from the PBX. The result reflects the PBX's
// current view and is deliberately not merged back into the log; the
// next sync cycle observes it through the regular path.
func (s *CallService) Detail(ctx context.Context, callID string) (domain.Call, error) {
	if callID == "" {
		return domain.Call{}, domain.ErrInvalidArgument
	}

	call, err := s.pbx.FetchCallDetail(ctx, callID)
	if err != nil {
		return domain.Call{}, err
	}

	// The PBX does not know about ticket linkage; graft the local one
	// so a detail view never appears to have lost its ticket.
	if logged, ok := s.loggedCall(callID); ok && logged.TicketID != "" {
		call.TicketID = logged.TicketID
	}
	return call, nil
}

// Extensions fetches the current extension set from the PBX.
func (s *CallService) Extensions(ctx context.Context) ([]domain.Extension, error) {
	return s.pbx.FetchExtensions(ctx)
}

func (s *CallService) loggedCall(callID string) (domain.Call, bool) {
	for _, c := range s.engine.Snapshot().Calls {
		if c.ID == callID {
			return c, true
		}
	}
	return domain.Call{}, false
}
