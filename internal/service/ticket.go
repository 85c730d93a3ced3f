package service

import (
	"context"
	"fmt"
	"sync"

	"callmon-api/internal/domain"
	"callmon-api/internal/observability/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerResolver resolves a phone number to at most one customer.
type CustomerResolver interface {
	Resolve(ctx context.Context, phoneNumber string) (*domain.Customer, error)
}

// TicketCreator submits ticket-creation requests to the ticketing
// service.
type TicketCreator interface {
	CreateTicket(ctx context.Context, req domain.TicketRequest) (string, error)
}

// CallLog is the slice of the sync engine the ticket workflow needs.
type CallLog interface {
	Call(id string) (domain.Call, bool)
	AttachTicket(ctx context.Context, callID, ticketID string) error
	RequestRefresh()
}

// TicketRecorder observes successful ticket creations for metrics.
type TicketRecorder interface {
	TicketCreated(ctx context.Context)
}

// TicketService orchestrates ticket linkage: select a call, resolve
// its counterparty to a customer, create the ticket, attach the
// returned identifier onto the call record.
type TicketService struct {
	callLog  CallLog
	resolver CustomerResolver
	tickets  TicketCreator
	recorder TicketRecorder // may be nil
	log      *logger.Logger

	// mu serializes linkage end to end so concurrent attempts against
	// one call cannot both reach the ticketing service; creation must
	// never be duplicated.
	mu sync.Mutex
}

// NewTicketService creates a TicketService. recorder may be nil.
func NewTicketService(callLog CallLog, resolver CustomerResolver, tickets TicketCreator, recorder TicketRecorder, log *logger.Logger) *TicketService {
	return &TicketService{
		callLog:  callLog,
		resolver: resolver,
		tickets:  tickets,
		recorder: recorder,
		log:      log,
	}
}

// CreateTicketForCall runs the linkage workflow and returns the new
// ticket identifier.
//
// Failure modes, all reported to the caller and never retried here:
// ErrNotFound (call not in the retained log), ErrAlreadyLinked,
// ErrCustomerRequired, ErrUpstreamUnavailable.
func (s *TicketService) CreateTicketForCall(ctx context.Context, callID string, req domain.CreateTicketRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.callLog.Call(callID)
	if !ok {
		return "", fmt.Errorf("%w: call %s is not in the current log", domain.ErrNotFound, callID)
	}
	if call.TicketID != "" {
		return "", fmt.Errorf("%w: call %s carries ticket %s", domain.ErrAlreadyLinked, callID, call.TicketID)
	}

	customer, err := s.resolver.Resolve(ctx, call.Counterparty())
	if err != nil {
		return "", fmt.Errorf("resolve counterparty for call %s: %w", callID, err)
	}
	if customer == nil {
		// The ticketing system requires an owner; without a resolved
		// customer there is nothing to create the ticket against.
		return "", fmt.Errorf("%w: no customer matches the counterparty of call %s", domain.ErrCustomerRequired, callID)
	}

	ticketID, err := s.tickets.CreateTicket(ctx, domain.TicketRequest{
		CustomerID:  customer.ID,
		Title:       req.Title,
		Note:        req.Note,
		CallRef:     callID,
		ExternalRef: uuid.NewString(),
	})
	if err != nil {
		// The call stays unlinked; the caller decides whether to retry.
		return "", fmt.Errorf("create ticket for call %s: %w", callID, err)
	}

	if err := s.callLog.AttachTicket(ctx, callID, ticketID); err != nil {
		// The ticket exists upstream but the call vanished from the
		// retained window mid-flight. Surface the ticket id anyway;
		// the linkage is recorded on the ticket via CallRef.
		s.log.Warn(ctx, "ticket created but call no longer linkable",
			logger.Module("ticket"),
			logger.Action("attach"),
			zap.String("call_id", callID),
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
		if s.recorder != nil {
			s.recorder.TicketCreated(ctx)
		}
		return ticketID, nil
	}

	s.log.Info(ctx, "ticket created and linked",
		logger.Module("ticket"),
		logger.Action("create"),
		zap.String("call_id", callID),
		zap.String("ticket_id", ticketID),
		zap.String("customer_id", customer.ID),
	)
	if s.recorder != nil {
		s.recorder.TicketCreated(ctx)
	}

	// Reflect the linkage upstream view promptly.
	s.callLog.RequestRefresh()

	return ticketID, nil
}
