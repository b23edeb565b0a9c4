package events

import (
	"encoding/json"
	"time"

	"mailflow/internal/exterrors"
	"mailflow/internal/redact"
)

// Handler names the dispatcher that produced a DLQ entry.
type Handler string

const (
	HandlerInbound    Handler = "inbound"
	HandlerOutbound   Handler = "outbound"
	HandlerSESGateway Handler = "ses-gateway"
)

// ErrorClass is the DLQ entry's retriable/permanent classification,
// derived from an exterrors.Kind at the moment the failure is logged.
type ErrorClass string

const (
	ErrorClassRetriable ErrorClass = "retriable"
	ErrorClassPermanent ErrorClass = "permanent"
)

// DLQEntry is the shape written to the dead-letter queue on a terminal
// failure.
type DLQEntry struct {
	Error     string                 `json:"error"`
	ErrorType ErrorClass             `json:"errorType"`
	Handler   Handler                `json:"handler"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// classify maps an exterrors.Kind onto the DLQ's binary error taxonomy.
func classify(err error) ErrorClass {
	if exterrors.Retriable(err) {
		return ErrorClassRetriable
	}
	return ErrorClassPermanent
}

// NewDLQEntry builds a DLQEntry from a failure, classifying it by the
// Kind attached to err (defaulting to permanent for unclassified errors,
// per exterrors.Retriable's conservative default). The error text passes
// through PII redaction (P8) before it is stored, since err.Error() may
// embed the address that caused the failure.
func NewDLQEntry(handler Handler, err error, context map[string]interface{}, now time.Time) DLQEntry {
	return DLQEntry{
		Error:     redact.String(err.Error()),
		ErrorType: classify(err),
		Handler:   handler,
		Context:   context,
		Timestamp: now.UTC(),
	}
}

func (d DLQEntry) Marshal() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindPlatform, "failed to marshal DLQ entry", err)
	}
	return b, nil
}
