package once

import (
	"net/url"
	"strings"
	"time"
)

// EntryState is the lifecycle state of a stored entry. A deleted entry has
// no record at all.
type EntryState string

const (
	EntryStatePending EntryState = "pending"
	EntryStateServed  EntryState = "served"
)

// Query parameters of a ticket request.
const (
	FilenameParam  = "f"
	TimestampParam = "t"
)

// Entry is the record describing one uploaded file.
type Entry struct {
	ID         string     `json:"id"`
	ObjectName string     `json:"object_name"`
	State      EntryState `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	ServedAt   *time.Time `json:"served_at,omitempty"`
}

// Filename returns the filename part of the object name.
func (e *Entry) Filename() string {
	return strings.TrimPrefix(e.ObjectName, e.ID+"/")
}

// ObjectName builds the storage key for an entry id and filename.
func ObjectName(id, filename string) string {
	return id + "/" + filename
}

// UploadCredential lets a client write exactly one object with a
// multipart POST: every field goes into the form, the file goes last
// under the "file" field.
type UploadCredential struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Ticket is returned to an authenticated uploader.
type Ticket struct {
	DownloadURL      string           `json:"download_url"`
	UploadCredential UploadCredential `json:"upload_credential"`
}

// TicketRequest carries an incoming signed ticket request.
type TicketRequest struct {
	Path      string
	Query     url.Values
	Signature string
}

// ConsumeRequest carries an incoming download request.
type ConsumeRequest struct {
	EntryID   string
	Filename  string
	UserAgent string
}

// ConsumeResult is either a redirect target or a masked response.
type ConsumeResult struct {
	Location string
	Masked   bool
}

// SweepResult summarizes one cleanup run.
type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}
