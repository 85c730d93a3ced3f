package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// CreateTicketRequest is the body of POST /v1/calls/{callId}/ticket.
// The customer is resolved server-side from the call's counterparty;
// the caller only supplies ticket content.
type CreateTicketRequest struct {
	Title string `json:"title" validate:"required,min=1,max=255"`
	Note  string `json:"note,omitempty" validate:"max=4000"`
}

// Validate sanitizes and validates the request.
func (r *CreateTicketRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Note = strings.TrimSpace(r.Note)

	validate := validator.New()
	return validate.Struct(r)
}

// PlaceCallRequest is the body of POST /v1/calls/dial.
type PlaceCallRequest struct {
	// From is the source extension number.
	From string `json:"from" validate:"required,min=1,max=32"`
	// To is the destination number in whatever format the PBX dials.
	To string `json:"to" validate:"required,min=1,max=32"`
}

// Validate sanitizes and validates the request.
func (r *PlaceCallRequest) Validate() error {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)

	validate := validator.New()
	return validate.Struct(r)
}
