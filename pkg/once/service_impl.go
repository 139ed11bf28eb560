package once

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/once/pkg/once/signature"
)

const (
	DefaultUploadExpiry   = 300 * time.Second
	DefaultDownloadExpiry = 20 * time.Second

	// DefaultIDAttempts bounds how often a colliding entry id is redrawn
	DefaultIDAttempts = 3
)

// service implements the Service interface
type service struct {
	repository     Repository
	blobStore      BlobStore
	signer         *signature.Signer
	masker         *ClientMasker
	eventSink      EventSink
	logger         *slog.Logger
	baseURL        string
	uploadExpiry   time.Duration
	downloadExpiry time.Duration
	idAttempts     int
	newID          func() (string, error)
	now            func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the record store
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the object store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithSigner sets the request verifier used for ticket issuance
func WithSigner(signer *signature.Signer) Option {
	return func(s *service) {
		s.signer = signer
	}
}

// WithClientMasker sets the user agents that never consume an entry
func WithClientMasker(masker *ClientMasker) Option {
	return func(s *service) {
		s.masker = masker
	}
}

// WithBaseURL sets the public prefix of download links
func WithBaseURL(baseURL string) Option {
	return func(s *service) {
		s.baseURL = baseURL
	}
}

// WithUploadExpiry sets the lifetime of upload credentials
func WithUploadExpiry(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.uploadExpiry = d
		}
	}
}

// WithDownloadExpiry sets the lifetime of download credentials
func WithDownloadExpiry(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.downloadExpiry = d
		}
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithIDGenerator replaces the entry id source
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *service) {
		s.newID = gen
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:      NewNoopEventSink(),
		logger:         slog.Default(),
		uploadExpiry:   DefaultUploadExpiry,
		downloadExpiry: DefaultDownloadExpiry,
		idAttempts:     DefaultIDAttempts,
		newID:          NewEntryID,
		now:            time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.signer == nil || !s.signer.IsEnabled() {
		return nil, fmt.Errorf("signer with a secret key is required")
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasSuffix(s.baseURL, "/") {
		s.baseURL += "/"
	}
	if s.masker == nil {
		masker, err := NewClientMasker(DefaultMaskedUserAgents)
		if err != nil {
			return nil, err
		}
		s.masker = masker
	}

	return s, nil
}

// Ticket operations

func (s *service) IssueUploadTicket(ctx context.Context, req TicketRequest) (*Ticket, error) {
	const op = "issue_upload_ticket"

	ticket, err := s.issueUploadTicket(ctx, op, req)
	if err != nil {
		s.eventSink.TicketRejected(ctx, KindOf(err))
		return nil, err
	}
	return ticket, nil
}

func (s *service) issueUploadTicket(ctx context.Context, op string, req TicketRequest) (*Ticket, error) {
	filename := req.Query.Get(FilenameParam)
	if filename == "" {
		return nil, newError(KindBadRequest, op, "Provide a valid value for the `f` query parameter", nil)
	}
	timestamp := req.Query.Get(TimestampParam)
	if timestamp == "" {
		return nil, newError(KindBadRequest, op, "Provide a valid value for the `t` query parameter", nil)
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, newError(KindBadRequest, op, "Provide a valid value for the `f` query parameter", err)
	}

	if err := s.signer.CheckTimestamp(timestamp); err != nil {
		return nil, s.authError(op, err)
	}
	if err := s.signer.VerifyRequest(req.Path, req.Query, req.Signature); err != nil {
		return nil, s.authError(op, err)
	}

	entry, err := s.createEntry(ctx, filename)
	if err != nil {
		s.logger.Error("failed to create entry", "error", err)
		return nil, newError(KindInternal, op, "Failed to create the upload ticket", err)
	}

	cred, err := s.blobStore.PresignUpload(ctx, entry.ObjectName, s.uploadExpiry)
	if err != nil {
		s.logger.Error("failed to presign upload", "entry_id", entry.ID, "error", err)
		return nil, newError(KindInternal, op, "Failed to create the upload ticket", err)
	}

	s.logger.Debug("upload ticket issued", "entry_id", entry.ID)
	s.eventSink.TicketIssued(ctx, entry)

	return &Ticket{
		DownloadURL:      s.baseURL + entry.ID + "/" + url.PathEscape(filename),
		UploadCredential: *cred,
	}, nil
}

// authError maps signature failures to Unauthorized. Anything else is a
// misconfigured signer.
func (s *service) authError(op string, err error) error {
	if signature.IsAuthError(err) {
		return newError(KindUnauthorized, op, "Your request cannot be authorized", err)
	}
	s.logger.Error("failed to verify request", "error", err)
	return newError(KindInternal, op, "Failed to create the upload ticket", err)
}

func (s *service) createEntry(ctx context.Context, filename string) (*Entry, error) {
	var lastErr error
	for attempt := 0; attempt < s.idAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}
		entry := &Entry{
			ID:         id,
			ObjectName: ObjectName(id, filename),
			State:      EntryStatePending,
			CreatedAt:  s.now().UTC(),
		}
		err = s.repository.CreateEntry(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrEntryExists) {
			return nil, err
		}
		s.logger.Warn("entry id collision", "entry_id", id, "attempt", attempt+1)
		lastErr = err
	}
	return nil, fmt.Errorf("no free entry id after %d attempts: %w", s.idAttempts, lastErr)
}

// Delivery operations

func (s *service) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	const op = "consume"

	notFound := func(err error) error {
		s.eventSink.EntryNotFound(ctx, req.EntryID)
		return newError(KindNotFound, op, "Entry not found", err)
	}

	if !ValidEntryID(req.EntryID) {
		return nil, notFound(ErrEntryNotFound)
	}

	entry, err := s.repository.GetEntry(ctx, req.EntryID)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, notFound(err)
	}
	if err != nil {
		s.logger.Error("failed to get entry", "entry_id", req.EntryID, "error", err)
		return nil, newError(KindInternal, op, "Failed to look up the entry", err)
	}
	if entry.State != EntryStatePending {
		return nil, notFound(ErrEntryAlreadyServed)
	}
	if entry.ObjectName != ObjectName(req.EntryID, req.Filename) {
		return nil, notFound(ErrEntryNotFound)
	}

	if s.masker.Match(req.UserAgent) {
		s.logger.Debug("masked client", "entry_id", entry.ID, "user_agent", req.UserAgent)
		s.eventSink.PreviewMasked(ctx, entry, req.UserAgent)
		return &ConsumeResult{Masked: true}, nil
	}

	location, err := s.blobStore.PresignDownload(ctx, entry.ObjectName, s.downloadExpiry)
	if err != nil {
		s.logger.Error("failed to presign download", "entry_id", entry.ID, "error", err)
		return nil, newError(KindInternal, op, "Failed to prepare the download", err)
	}

	servedAt := s.now().UTC()
	if err := s.repository.MarkServed(ctx, entry.ID, servedAt); err != nil {
		if errors.Is(err, ErrEntryAlreadyServed) || errors.Is(err, ErrEntryNotFound) {
			// another request won the transition; the minted URL is dropped
			return nil, notFound(err)
		}
		s.logger.Error("failed to mark entry served", "entry_id", entry.ID, "error", err)
		return nil, newError(KindInternal, op, "Failed to prepare the download", err)
	}
	entry.State = EntryStateServed
	entry.ServedAt = &servedAt

	s.logger.Info("entry served", "entry_id", entry.ID)
	s.eventSink.EntryServed(ctx, entry)

	return &ConsumeResult{Location: location}, nil
}

// Cleanup operations

func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	const op = "sweep"

	entries, err := s.repository.ListEntriesByState(ctx, EntryStateServed)
	if err != nil {
		return nil, newError(KindInternal, op, "Failed to list served entries", err)
	}

	result := &SweepResult{Scanned: len(entries)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := s.blobStore.Delete(ctx, entry.ObjectName)
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			s.logger.Error("failed to delete object", "entry_id", entry.ID, "object_name", entry.ObjectName, "error", err)
			s.eventSink.PurgeFailed(ctx, entry, err)
			result.Failed++
			continue
		}

		err = s.repository.DeleteEntry(ctx, entry.ID)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			s.logger.Error("failed to delete entry", "entry_id", entry.ID, "error", err)
			s.eventSink.PurgeFailed(ctx, entry, err)
			result.Failed++
			continue
		}

		s.logger.Debug("entry purged", "entry_id", entry.ID)
		s.eventSink.EntryPurged(ctx, entry)
		result.Deleted++
	}

	return result, nil
}
