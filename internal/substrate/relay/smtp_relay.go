package relay

import (
	"context"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/emersion/go-sasl"

	"mailflow/internal/exterrors"
)

// SMTPRelay is an alternate Relay that forwards transparently to a
// downstream SMTP server via a connect/Mail/Rcpt/Data sequence. Unlike
// SESRelay it has no native quota/identity-verification API, so
// SendQuota/VerifySender report permissive defaults — a deployment that
// needs real enforcement should use SESRelay instead.
type SMTPRelay struct {
	addr     string
	auth     sasl.Client
	dialFunc func(addr string) (*gosmtp.Client, error)
}

// NewSMTPRelay constructs a relay dialing addr for each send, authenticated
// with auth (may be nil for unauthenticated relays).
func NewSMTPRelay(addr string, auth sasl.Client) *SMTPRelay {
	return &SMTPRelay{
		addr: addr,
		auth: auth,
		dialFunc: func(addr string) (*gosmtp.Client, error) {
			return gosmtp.Dial(addr)
		},
	}
}

func (r *SMTPRelay) SendRaw(ctx context.Context, raw []byte, from string, recipients []string) (string, error) {
	cl, err := r.dialFunc(r.addr)
	if err != nil {
		return "", exterrors.Wrap(exterrors.KindRelay, "connect to downstream relay failed", err)
	}
	defer cl.Close()

	if r.auth != nil {
		if err := cl.Auth(r.auth); err != nil {
			return "", exterrors.Wrap(exterrors.KindRelay, "relay auth failed", err)
		}
	}

	if err := cl.Mail(from, nil); err != nil {
		return "", exterrors.Wrap(exterrors.KindRelay, "MAIL FROM rejected", err)
	}
	for _, rcpt := range recipients {
		if err := cl.Rcpt(rcpt, nil); err != nil {
			return "", exterrors.Wrap(exterrors.KindRelay, "RCPT TO rejected", err)
		}
	}

	w, err := cl.Data()
	if err != nil {
		return "", exterrors.Wrap(exterrors.KindRelay, "DATA rejected", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", exterrors.Wrap(exterrors.KindRelay, "relay write failed", err)
	}
	if err := w.Close(); err != nil {
		return "", exterrors.Wrap(exterrors.KindRelay, "relay commit failed", err)
	}

	return "", cl.Quit()
}

func (r *SMTPRelay) SendQuota(ctx context.Context) (Quota, error) {
	return Quota{Max24hSend: -1, MaxSendRate: -1}, nil
}

func (r *SMTPRelay) VerifySender(ctx context.Context, address string) (bool, error) {
	return len(address) > 0 && strings.ContainsRune(address, '@'), nil
}
