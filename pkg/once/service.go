package once

import "context"

// Service defines the one-time delivery operations
type Service interface {
	// IssueUploadTicket authenticates a signed request, creates a pending
	// entry and returns where to upload the file and where to fetch it.
	IssueUploadTicket(ctx context.Context, req TicketRequest) (*Ticket, error)

	// Consume serves a pending entry exactly once. Link-preview clients
	// get a masked result and leave the entry untouched.
	Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error)

	// Sweep deletes the objects and records of served entries.
	Sweep(ctx context.Context) (*SweepResult, error)
}
