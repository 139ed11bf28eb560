package once

import "context"

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) TicketIssued(ctx context.Context, entry *Entry) {}

func (n *NoopEventSink) TicketRejected(ctx context.Context, kind Kind) {}

func (n *NoopEventSink) EntryServed(ctx context.Context, entry *Entry) {}

func (n *NoopEventSink) EntryNotFound(ctx context.Context, entryID string) {}

func (n *NoopEventSink) PreviewMasked(ctx context.Context, entry *Entry, userAgent string) {}

func (n *NoopEventSink) EntryPurged(ctx context.Context, entry *Entry) {}

func (n *NoopEventSink) PurgeFailed(ctx context.Context, entry *Entry, err error) {}
