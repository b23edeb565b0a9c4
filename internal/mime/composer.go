package mime

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	emmail "github.com/emersion/go-message/mail"

	"mailflow/internal/exterrors"
)

// ComposeAddress is the minimal address shape the composer needs, decoupled
// from email.Address so callers can compose without a full parsed Email.
type ComposeAddress struct {
	Address string
	Name    string
}

// AttachmentSource supplies already-fetched attachment bytes plus the
// metadata needed to write the MIME part. Byte hydration from object
// storage happens one layer up (internal/dispatch/outbound).
type AttachmentSource struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// ComposeRequest is the input to Compose, the subset of OutboundRequest.email
// the composer needs.
type ComposeRequest struct {
	From    ComposeAddress
	To      []ComposeAddress
	Cc      []ComposeAddress
	ReplyTo *ComposeAddress
	Subject string
	Text    string
	HTML    string

	InReplyTo  string
	References []string

	Attachments []AttachmentSource
}

// relayAttachmentLimit is the outbound relay's binary attachment cap.
const relayAttachmentLimit = 10 << 20 // 10 MiB

// Compose builds a raw RFC 5322 message from req.
// ComposeRequest has no Bcc field: BCC addresses are handled as envelope
// recipients one layer up, so the composer only ever writes
// From/To/Cc/Reply-To.
func Compose(req ComposeRequest) ([]byte, error) {
	var total int64
	for _, a := range req.Attachments {
		total += int64(len(a.Bytes))
	}
	if total > relayAttachmentLimit {
		return nil, exterrors.New(exterrors.KindValidation, "attachment payload exceeds the outbound relay's 10 MiB cap")
	}

	var h emmail.Header
	h.SetAddressList("From", []*emmail.Address{{Name: req.From.Name, Address: req.From.Address}})
	if len(req.To) > 0 {
		h.SetAddressList("To", toEmAddresses(req.To))
	}
	if len(req.Cc) > 0 {
		h.SetAddressList("Cc", toEmAddresses(req.Cc))
	}
	if req.ReplyTo != nil {
		h.SetAddressList("Reply-To", toEmAddresses([]ComposeAddress{*req.ReplyTo}))
	}
	// SetSubject RFC 2047-encodes the subject only when it needs encoding
	// (non-ASCII); ASCII-only subjects are written verbatim.
	h.SetSubject(req.Subject)
	h.SetDate(time.Now())

	var buf bytes.Buffer
	w, err := emmail.CreateWriter(&buf, h)
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "failed to start MIME writer", err)
	}

	if err := writeBody(w, req); err != nil {
		return nil, err
	}

	for _, att := range req.Attachments {
		if err := writeAttachment(w, att); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "failed to finalize MIME message", err)
	}

	return appendThreadingHeaders(buf.Bytes(), req.InReplyTo, req.References), nil
}

func writeBody(w *emmail.Writer, req ComposeRequest) error {
	hasText := req.Text != ""
	hasHTML := req.HTML != ""

	switch {
	case hasText && hasHTML:
		iw, err := w.CreateInline()
		if err != nil {
			return exterrors.Wrap(exterrors.KindValidation, "failed to create alternative body", err)
		}
		defer iw.Close()
		if err := writeInlinePart(iw, "text/plain", req.Text); err != nil {
			return err
		}
		return writeInlinePart(iw, "text/html", req.HTML)
	case hasText:
		return writeSingleInline(w, "text/plain", req.Text)
	case hasHTML:
		return writeSingleInline(w, "text/html", req.HTML)
	default:
		return writeSingleInline(w, "text/plain", "")
	}
}

func writeInlinePart(iw *emmail.InlineWriter, contentType, body string) error {
	var ih emmail.InlineHeader
	ih.Set("Content-Type", contentType+"; charset=utf-8")
	pw, err := iw.CreatePart(ih)
	if err != nil {
		return exterrors.Wrap(exterrors.KindValidation, "failed to create "+contentType+" part", err)
	}
	defer pw.Close()
	_, err = io.WriteString(pw, body)
	return err
}

func writeSingleInline(w *emmail.Writer, contentType, body string) error {
	var ih emmail.InlineHeader
	ih.Set("Content-Type", contentType+"; charset=utf-8")
	pw, err := w.CreateSingleInline(ih)
	if err != nil {
		return exterrors.Wrap(exterrors.KindValidation, "failed to create body part", err)
	}
	defer pw.Close()
	_, err = io.WriteString(pw, body)
	return err
}

func writeAttachment(w *emmail.Writer, att AttachmentSource) error {
	var ah emmail.AttachmentHeader
	ah.SetFilename(att.Filename)
	ah.Set("Content-Type", att.ContentType)
	ah.Set("Content-Transfer-Encoding", "base64")

	pw, err := w.CreateAttachment(ah)
	if err != nil {
		return exterrors.Wrap(exterrors.KindValidation, fmt.Sprintf("failed to create attachment part for %q", att.Filename), err)
	}
	defer pw.Close()

	enc := base64.NewEncoder(base64.StdEncoding, pw)
	defer enc.Close()
	_, err = enc.Write(att.Bytes)
	return err
}

func toEmAddresses(in []ComposeAddress) []*emmail.Address {
	out := make([]*emmail.Address, 0, len(in))
	for _, a := range in {
		out = append(out, &emmail.Address{Name: a.Name, Address: a.Address})
	}
	return out
}

// appendThreadingHeaders appends In-Reply-To/References after the header
// section but before the blank line terminator. The
// composer writes these post-hoc rather than via the mail.Header API
// because go-message does not expose raw References/In-Reply-To setters
// for arbitrary multi-token values without re-parsing.
func appendThreadingHeaders(raw []byte, inReplyTo string, references []string) []byte {
	if inReplyTo == "" && len(references) == 0 {
		return raw
	}

	sep := []byte("\r\n\r\n")
	idx := bytes.Index(raw, sep)
	if idx < 0 {
		sep = []byte("\n\n")
		idx = bytes.Index(raw, sep)
		if idx < 0 {
			return raw
		}
	}

	var extra bytes.Buffer
	if inReplyTo != "" {
		fmt.Fprintf(&extra, "In-Reply-To: <%s>\r\n", strings.Trim(inReplyTo, "<>"))
	}
	if len(references) > 0 {
		refs := make([]string, 0, len(references))
		for _, r := range references {
			refs = append(refs, "<"+strings.Trim(r, "<>")+">")
		}
		fmt.Fprintf(&extra, "References: %s\r\n", strings.Join(refs, " "))
	}

	// Cut after the last header's own line ending, so the new headers start
	// on a fresh line and the blank line that follows them is kept.
	cut := idx + len(sep)/2
	out := make([]byte, 0, len(raw)+extra.Len())
	out = append(out, raw[:cut]...)
	out = append(out, extra.Bytes()...)
	out = append(out, raw[cut:]...)
	return out
}
