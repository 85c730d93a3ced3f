package service

import (
	"context"
	"fmt"

	"callmon-api/internal/domain"
	"callmon-api/internal/observability/logger"

	"go.uber.org/zap"
)

// CallInitiator is the slice of the PBX adapter the dialer needs.
type CallInitiator interface {
	InitiateCall(ctx context.Context, fromExtension, toNumber string) error
}

// ExtensionView exposes the latest observed extension snapshot.
type ExtensionView interface {
	Extensions() []domain.Extension
}

// Refresher requests an out-of-cycle resynchronization.
type Refresher interface {
	RequestRefresh()
}

// DialService validates a dial request, delegates to the PBX and
// schedules an immediate resync on success. No local state.
type DialService struct {
	pbx        CallInitiator
	extensions ExtensionView
	refresher  Refresher
	log        *logger.Logger
}

// NewDialService creates a DialService.
func NewDialService(pbx CallInitiator, extensions ExtensionView, refresher Refresher, log *logger.Logger) *DialService {
	return &DialService{
		pbx:        pbx,
		extensions: extensions,
		refresher:  refresher,
		log:        log,
	}
}

// PlaceCall asks the PBX to originate a call from an extension.
// A failed dial returns the adapter's error unchanged and does not
// trigger a resync.
func (s *DialService) PlaceCall(ctx context.Context, req domain.PlaceCallRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err)
	}

	// When an extension snapshot exists, reject an unknown source
	// before bothering the PBX. An empty snapshot (startup, extension
	// fetch degraded) skips the check rather than blocking dialing.
	if exts := s.extensions.Extensions(); len(exts) > 0 && !knownExtension(exts, req.From) {
		return fmt.Errorf("%w: unknown source extension %q", domain.ErrInvalidArgument, req.From)
	}

	if err := s.pbx.InitiateCall(ctx, req.From, req.To); err != nil {
		return err
	}

	s.log.Info(ctx, "call placed",
		logger.Module("dialer"),
		logger.Action("place_call"),
		zap.String("from_extension", req.From),
	)

	s.refresher.RequestRefresh()
	return nil
}

func knownExtension(exts []domain.Extension, number string) bool {
	for _, e := range exts {
		if e.Number == number {
			return true
		}
	}
	return false
}
