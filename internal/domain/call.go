package domain

import "time"

// Direction tells which side of the PBX originated the call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallStatus is the lifecycle state of a call as reported by the PBX.
// Active transitions to exactly one of Completed or Missed; both are
// terminal. A call may also be first observed already terminal when it
// enters the history window.
type CallStatus string

const (
	CallActive    CallStatus = "active"
	CallCompleted CallStatus = "completed"
	CallMissed    CallStatus = "missed"
)

// Terminal reports whether the status can no longer change.
func (s CallStatus) Terminal() bool {
	return s == CallCompleted || s == CallMissed
}

// Call is one telephony session, live or historical. The PBX owns the
// source-of-truth record; this struct is the normalized in-process view.
//
// Invariants enforced by the sync engine:
//   - ID is immutable.
//   - DurationSeconds is nil while Status is CallActive.
//   - TicketID, once set, is never cleared or reassigned.
type Call struct {
	ID            string     `json:"id"`
	Direction     Direction  `json:"direction"`
	Caller        string     `json:"caller"`
	Recipient     string     `json:"recipient"`
	CallerName    string     `json:"callerName,omitempty"`
	RecipientName string     `json:"recipientName,omitempty"`
	Status        CallStatus `json:"status"`
	OccurredAt    time.Time  `json:"occurredAt"`

	// DurationSeconds is present only once the call has ended.
	DurationSeconds *int64 `json:"durationSeconds,omitempty"`

	RecordingURL string `json:"recordingUrl,omitempty"`

	// TicketID is the support ticket linked to this call, set at most
	// once by the ticket linkage workflow.
	TicketID string `json:"ticketId,omitempty"`
}

// Counterparty returns the external party's number: the caller for an
// inbound call, the recipient for an outbound one.
func (c Call) Counterparty() string {
	if c.Direction == DirectionOutbound {
		return c.Recipient
	}
	return c.Caller
}

// ExtensionStatus is the PBX-reported availability of an agent line.
type ExtensionStatus string

const (
	ExtensionAvailable ExtensionStatus = "available"
	ExtensionBusy      ExtensionStatus = "busy"
	ExtensionOffline   ExtensionStatus = "offline"
	ExtensionOther     ExtensionStatus = "other"
)

// Extension is one agent line known to the PBX. Wholly owned and
// mutated by the PBX; the engine only observes snapshots.
type Extension struct {
	ID     string          `json:"id"`
	Name   string          `json:"name,omitempty"`
	Number string          `json:"number"`
	Status ExtensionStatus `json:"status"`
}
