// Package mime implements the MIME parse/compose boundary (C2/C6), built
// on emersion/go-message/mail and its textproto layer.
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"mailflow/internal/email"
	"mailflow/internal/exterrors"
)

const maxAttachmentsScanned = 512 // defensive cap on parts walked per message

// Parse decodes raw RFC 5322 bytes into an email.Email.
// now is injected so tests are deterministic; production callers pass
// time.Now.
func Parse(raw []byte, now time.Time) (*email.Email, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindEmailParsing, "not a recognizable RFC 5322 message", err)
	}

	e := &email.Email{
		ReceivedAt: now,
		Headers:    email.Headers{Custom: map[string]string{}},
	}

	if from, err := r.Header.AddressList("From"); err == nil && len(from) > 0 {
		e.From = toAddress(from[0])
	}
	e.To = toAddresses(headerAddressList(r.Header, "To"))
	e.Cc = toAddresses(headerAddressList(r.Header, "Cc"))
	e.Bcc = toAddresses(headerAddressList(r.Header, "Bcc"))
	if rt := headerAddressList(r.Header, "Reply-To"); len(rt) > 0 {
		a := toAddress(rt[0])
		e.ReplyTo = &a
	}

	if subj, err := r.Header.Subject(); err == nil {
		e.Subject = subj
	}

	if msgID, err := r.Header.MessageID(); err == nil && msgID != "" {
		e.MessageID = msgID
	} else {
		e.MessageID = fmt.Sprintf("generated-%d", now.Unix())
	}

	e.Headers.InReplyTo = firstHeaderValue(r.Header, "In-Reply-To")
	e.Headers.References = splitReferences(r.Header.Get("References"))

	inlineImageCount := 0
	for i := 0; i < maxAttachmentsScanned; i++ {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed trailing part does not invalidate an otherwise
			// parseable message; stop walking and keep what we extracted.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, params, _ := h.ContentType()
			body, _ := io.ReadAll(part.Body)
			switch {
			case strings.EqualFold(ct, "text/plain") && e.Body.Text == "":
				e.Body.Text = string(body)
			case strings.EqualFold(ct, "text/html") && e.Body.HTML == "":
				e.Body.HTML = string(body)
			case strings.HasPrefix(strings.ToLower(ct), "image/") && hasContentID(h):
				inlineImageCount++
				e.TransientAttachmentBlobs = append(e.TransientAttachmentBlobs, email.TransientBlob{
					Filename:            inlineFilename(h, inlineImageCount),
					DeclaredContentType: ct,
					Bytes:               body,
				})
			default:
				_ = params
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			body, _ := io.ReadAll(part.Body)
			if filename == "" && strings.HasPrefix(strings.ToLower(ct), "image/") && hasContentID(h) {
				inlineImageCount++
				filename = inlineFilename(h, inlineImageCount)
			}
			if filename == "" {
				continue
			}
			e.TransientAttachmentBlobs = append(e.TransientAttachmentBlobs, email.TransientBlob{
				Filename:            filename,
				DeclaredContentType: ct,
				Bytes:               body,
			})
		}
	}

	return e, nil
}

func headerAddressList(h mail.Header, key string) []*mail.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	return list
}

func toAddress(a *mail.Address) email.Address {
	return email.Address{Address: a.Address, Name: a.Name}
}

func toAddresses(in []*mail.Address) []email.Address {
	out := make([]email.Address, 0, len(in))
	for _, a := range in {
		out = append(out, toAddress(a))
	}
	return out
}

func firstHeaderValue(h mail.Header, key string) string {
	v := h.Get(key)
	return strings.TrimSpace(v)
}

// splitReferences parses the References header into an ordered list of
// message-ids, stripping angle brackets.
func splitReferences(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.Trim(f, "<>"))
	}
	return out
}

type contentIDHeader interface {
	Get(string) string
}

func hasContentID(h contentIDHeader) bool {
	return strings.TrimSpace(h.Get("Content-Id")) != ""
}

// inlineFilename synthesizes a filename for an inline image attachment:
// "inline-<stripped-content-id>.dat" or "inline-image-<N>.dat" when no
// Content-ID is present.
func inlineFilename(h contentIDHeader, n int) string {
	cid := strings.Trim(strings.TrimSpace(h.Get("Content-Id")), "<>")
	if cid == "" {
		return "inline-image-" + strconv.Itoa(n) + ".dat"
	}
	return "inline-" + cid + ".dat"
}
