package domain

import "errors"

// Error taxonomy shared by the upstream clients, the sync engine and
// the workflows. Callers classify with errors.Is; wrapping with
// fmt.Errorf("...: %w", err) preserves the sentinel.
var (
	// ErrUpstreamUnavailable covers transport failures and timeouts
	// against the PBX or the CRM/ticketing service.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamProtocol means the upstream answered but the response
	// could not be normalized (missing required fields, bad payload).
	ErrUpstreamProtocol = errors.New("upstream protocol error")

	// ErrNotFound means the referenced identifier is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the caller supplied bad input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCustomerRequired means no CRM customer could be resolved for
	// the call's counterparty; tickets cannot be created without one.
	ErrCustomerRequired = errors.New("customer required")

	// ErrAlreadyLinked means the call already carries a ticket id.
	// Linking is never overwritten, so a second attempt is rejected.
	ErrAlreadyLinked = errors.New("call already linked to a ticket")
)
