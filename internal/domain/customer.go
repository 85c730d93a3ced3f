package domain

// Customer is a CRM-side identity, read-only from this service's
// perspective. The association between a customer and a call is
// recomputed at resolution time and only becomes durable through
// ticket linkage.
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// TicketRequest is what the ticket linkage workflow submits to the
// external ticketing service.
type TicketRequest struct {
	CustomerID string `json:"customer_id"`
	Title      string `json:"title"`
	Note       string `json:"note,omitempty"`

	// CallRef is the PBX call identifier, stored on the ticket for
	// cross-reference.
	CallRef string `json:"call_ref"`

	// ExternalRef is a client-generated UUID the ticketing service can
	// use to deduplicate submissions.
	ExternalRef string `json:"external_ref"`
}
