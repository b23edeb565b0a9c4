// Package email defines the canonical in-memory Email value
// produced by the MIME parser and consumed by the attachment materializer,
// routing resolver, and (via round-trip tests) the composer.
package email

import (
	"strings"
	"time"
)

// Address is {address, name?}; equality is by address only.
type Address struct {
	Address string
	Name    string
}

// Equal compares two addresses by address only, case-insensitively, since
// the local-part and domain of an email address are not case significant
// for routing/dedup purposes in this system.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(a.Address, other.Address)
}

// Body holds the two renderings of a message body; at least one is
// populated for a valid OutboundRequest ( invariant).
type Body struct {
	Text string
	HTML string
}

// Headers carries the threading headers plus arbitrary custom ones.
type Headers struct {
	InReplyTo  string
	References []string
	Custom     map[string]string
}

// AttachmentStatus is the materialization outcome for one Attachment.
type AttachmentStatus string

const (
	AttachmentAvailable AttachmentStatus = "Available"
	AttachmentFailed    AttachmentStatus = "Failed"
)

// Attachment is the materialized record produced by the attachment
// materializer (C3).
type Attachment struct {
	OriginalFilename   string
	SanitizedFilename  string
	DeclaredContentType string
	Size               int64
	Bucket             string
	Key                string
	PresignedURL       string
	PresignedURLExpiry time.Time
	ChecksumMD5        string
	Status             AttachmentStatus
	Error              string
}

// TransientBlob is a not-yet-materialized attachment produced by the MIME
// parser; it is never serialized.
type TransientBlob struct {
	Filename            string
	DeclaredContentType string
	Bytes               []byte
}

// Email is the canonical parsed/composed message value.
type Email struct {
	MessageID string

	From     Address
	To       []Address
	Cc       []Address
	Bcc      []Address
	ReplyTo  *Address

	Subject string
	Body    Body

	Attachments []Attachment

	// TransientAttachmentBlobs holds raw attachment bytes produced by the
	// parser before C3 materializes them; never serialized.
	TransientAttachmentBlobs []TransientBlob

	Headers Headers

	ReceivedAt time.Time
}

// AllRecipients returns To, Cc and Bcc concatenated, in that order, for
// callers that need the full recipient set (routing, envelope recipients).
func (e *Email) AllRecipients() []Address {
	out := make([]Address, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}
