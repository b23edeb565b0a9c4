package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"mailflow/internal/exterrors"
)

// envelopeVersion is the only InboundEnvelope version this build emits.
const envelopeVersion = "1.0"

// messageIDPrefix is the fixed prefix of every generated envelope
// message-id: "mailflow-<uuid>".
const messageIDPrefix = "mailflow"

// SourceName is the InboundEnvelope.source value.
const SourceName = "mailflow"

// InboundEnvelopeAttachment is the wire shape of one materialized
// attachment inside an InboundEnvelope.
type InboundEnvelopeAttachment struct {
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	PresignedURL string `json:"presigned_url,omitempty"`
	ChecksumMD5  string `json:"checksum_md5,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// InboundEnvelopeEmail is the routed-recipient-bearing payload nested in an
// InboundEnvelope.
type InboundEnvelopeEmail struct {
	From        string                      `json:"from"`
	To          []string                    `json:"to"`
	Cc          []string                    `json:"cc,omitempty"`
	Subject     string                      `json:"subject"`
	BodyText    string                      `json:"body_text,omitempty"`
	BodyHTML    string                      `json:"body_html,omitempty"`
	Attachments []InboundEnvelopeAttachment `json:"attachments,omitempty"`
}

// InboundEnvelopeMetadata carries the routing decision plus the security
// verdicts that produced it.
type InboundEnvelopeMetadata struct {
	RoutingKey   string  `json:"routing_key"`
	Domain       string  `json:"domain"`
	SpamScore    float32 `json:"spam_score"`
	DKIMVerified bool    `json:"dkim_verified"`
	SPFVerified  bool    `json:"spf_verified"`
}

// InboundEnvelope is the per-destination message published by the inbound
// dispatcher (C1) onto each resolved application queue. One Email
// produces N envelopes (one per resolved app), each with a distinct
// metadata.routing_key (P4).
type InboundEnvelope struct {
	Version   string                  `json:"version"`
	MessageID string                  `json:"message_id"`
	Timestamp time.Time               `json:"timestamp"`
	Source    string                  `json:"source"`
	Email     InboundEnvelopeEmail    `json:"email"`
	Metadata  InboundEnvelopeMetadata `json:"metadata"`
}

// NewInboundEnvelope builds an InboundEnvelope for a single resolved
// destination, generating a fresh "mailflow-<uuid>" message-id.
func NewInboundEnvelope(email InboundEnvelopeEmail, now time.Time, metadata InboundEnvelopeMetadata) InboundEnvelope {
	return InboundEnvelope{
		Version:   envelopeVersion,
		MessageID: messageIDPrefix + "-" + uuid.NewString(),
		Timestamp: now.UTC(),
		Source:    SourceName,
		Email:     email,
		Metadata:  metadata,
	}
}

func (e InboundEnvelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindEmailParsing, "failed to marshal inbound envelope", err)
	}
	return b, nil
}

// OutboundRequest is the dequeued payload the outbound dispatcher (C5)
// composes and relays.
type OutboundRequest struct {
	CorrelationID string               `json:"correlation_id"`
	From          string               `json:"from"`
	To            []string             `json:"to"`
	Cc            []string             `json:"cc,omitempty"`
	Bcc           []string             `json:"bcc,omitempty"`
	Subject       string               `json:"subject"`
	BodyText      string               `json:"body_text,omitempty"`
	BodyHTML      string               `json:"body_html,omitempty"`
	InReplyTo     string               `json:"in_reply_to,omitempty"`
	References    []string             `json:"references,omitempty"`
	Attachments   []OutboundAttachment `json:"attachments,omitempty"`
}

// OutboundAttachment references an object-store blob to fetch and compose
// into an outbound message, per OutboundRequest.email.attachments
// shape: {filename, content-type, bucket, key}.
type OutboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
}

// ParseOutboundRequest decodes and validates an OutboundRequest, enforcing
// the load-time invariants: a correlation ID, at least one
// recipient, a non-empty sender, and at least one of body_text/body_html.
func ParseOutboundRequest(raw []byte) (*OutboundRequest, error) {
	var req OutboundRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "outbound request is not valid JSON", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate enforces P12: to, from and subject are non-empty, and at
// least one of body.text/body.html is present.
func (r *OutboundRequest) Validate() error {
	if r.CorrelationID == "" {
		return exterrors.New(exterrors.KindValidation, "outbound request missing correlation_id")
	}
	if r.From == "" {
		return exterrors.New(exterrors.KindValidation, "outbound request missing from")
	}
	if len(r.To) == 0 {
		return exterrors.New(exterrors.KindValidation, "outbound request has no recipients in to")
	}
	if r.Subject == "" {
		return exterrors.New(exterrors.KindValidation, "outbound request missing subject")
	}
	if r.BodyText == "" && r.BodyHTML == "" {
		return exterrors.New(exterrors.KindValidation, "outbound request has neither body_text nor body_html")
	}
	return nil
}
