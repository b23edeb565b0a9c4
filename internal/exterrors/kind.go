// Package exterrors classifies errors for the retry/DLQ discipline: every
// error surfaced across a component boundary carries a Kind, and
// Kind.Retriable() decides whether the dispatcher retries in place or
// routes straight to the DLQ.
//
// A Temporary()-bearing error type plus a side-channel Fields() map for
// structured logging.
package exterrors

import "errors"

// Kind is the abstract error taxonomy.
type Kind string

const (
	KindEmailParsing Kind = "EmailParsing"
	KindRouting      Kind = "Routing"
	KindStorage      Kind = "Storage"
	KindQueue        Kind = "Queue"
	KindRelay        Kind = "Relay"
	KindConfig       Kind = "Config"
	KindValidation   Kind = "Validation"
	KindIdempotency  Kind = "Idempotency"
	KindRateLimit    Kind = "RateLimit"
	KindPlatform     Kind = "Platform"
	KindUnknown      Kind = "Unknown"
)

// Retriable reports whether errors of this kind should be retried by the
// retry wrapper (). Storage, Queue, Relay and Idempotency are the only
// retriable kinds; everything else is a permanent failure.
func (k Kind) Retriable() bool {
	switch k {
	case KindStorage, KindQueue, KindRelay, KindIdempotency:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind, implementing error,
// Unwrap, Temporary (for helpers that only check Temporary()) and
// Fields (structured logging).
type Error struct {
	Kind   Kind
	Msg    string
	Cause  error
	fields map[string]interface{}
}

// New constructs a classified error with a plain message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error under kind, preserving it as the cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Temporary reports whether e's Kind is retriable, so generic retry helpers
// that only know about Temporary() (not this package's Kind) still work.
func (e *Error) Temporary() bool { return e.Kind.Retriable() }

// Fields implements the fieldsErr interface used by Fields/WithFields.
func (e *Error) Fields() map[string]interface{} {
	if e.fields == nil {
		return map[string]interface{}{"kind": string(e.Kind)}
	}
	out := make(map[string]interface{}, len(e.fields)+1)
	for k, v := range e.fields {
		out[k] = v
	}
	out["kind"] = string(e.Kind)
	return out
}

// WithField attaches a structured field and returns the same *Error for
// chaining, e.g. exterrors.New(KindStorage, "...").WithField("bucket", b).
func (e *Error) WithField(key string, val interface{}) *Error {
	if e.fields == nil {
		e.fields = make(map[string]interface{}, 2)
	}
	e.fields[key] = val
	return e
}

// KindOf extracts the Kind from err, defaulting to KindUnknown if err was
// not produced by this package.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

// Retriable reports whether err should be retried, defaulting to "not
// retriable" for unclassified errors: an unclassified error in this
// system is almost always a programming mistake, not a transient fault.
func Retriable(err error) bool {
	return KindOf(err).Retriable()
}
