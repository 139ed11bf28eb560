package once

import (
	"context"
	"time"
)

// Repository stores entry records. MarkServed must be an atomic
// compare-and-swap from pending to served: exactly one concurrent caller
// succeeds, the others get ErrEntryAlreadyServed.
type Repository interface {
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	MarkServed(ctx context.Context, id string, servedAt time.Time) error
	ListEntriesByState(ctx context.Context, state EntryState) ([]*Entry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// BlobStore holds the uploaded objects and mints short-lived credentials
// for them. Delete returns ErrObjectNotFound when the object is absent.
type BlobStore interface {
	PresignUpload(ctx context.Context, objectName string, expiresIn time.Duration) (*UploadCredential, error)
	PresignDownload(ctx context.Context, objectName string, expiresIn time.Duration) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// EventSink receives lifecycle notifications.
type EventSink interface {
	TicketIssued(ctx context.Context, entry *Entry)
	TicketRejected(ctx context.Context, kind Kind)
	EntryServed(ctx context.Context, entry *Entry)
	EntryNotFound(ctx context.Context, entryID string)
	PreviewMasked(ctx context.Context, entry *Entry, userAgent string)
	EntryPurged(ctx context.Context, entry *Entry)
	PurgeFailed(ctx context.Context, entry *Entry, err error)
}
