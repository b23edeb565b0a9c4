// Package dispatch wires together every substrate and domain package into
// the two top-level pipelines: InboundDispatcher (C1) and
// OutboundDispatcher (C5), each a single orchestrating type per direction
// that holds its dependencies as plain interface fields.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-msgauth/authres"

	"mailflow/internal/attachment"
	"mailflow/internal/config"
	"mailflow/internal/email"
	"mailflow/internal/events"
	"mailflow/internal/exterrors"
	"mailflow/internal/log"
	"mailflow/internal/metrics"
	mimepkg "mailflow/internal/mime"
	"mailflow/internal/retry"
	"mailflow/internal/routing"
	"mailflow/internal/security"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/queue"
	"mailflow/internal/substrate/ratelimit"
)

// InboundDispatcher implements C1: fetch, gate, parse, materialize, route
// and publish one raw-mail record at a time.
type InboundDispatcher struct {
	Cfg          *config.RoutingConfig
	Store        objectstore.Store
	Queue        queue.Queue
	Limiter      ratelimit.Limiter
	Materializer *attachment.Materializer
	Metrics      *metrics.Sink
	Log          log.Logger
	RetryCfg     retry.Config
	Now          func() time.Time
}

// NewInboundDispatcher wires the default retry policy and time.Now clock.
func NewInboundDispatcher(cfg *config.RoutingConfig, store objectstore.Store, q queue.Queue, limiter ratelimit.Limiter, materializer *attachment.Materializer, sink *metrics.Sink) *InboundDispatcher {
	return &InboundDispatcher{
		Cfg:          cfg,
		Store:        store,
		Queue:        q,
		Limiter:      limiter,
		Materializer: materializer,
		Metrics:      sink,
		Log:          log.New("dispatch.inbound"),
		RetryCfg:     retry.DefaultConfig(),
		Now:          time.Now,
	}
}

// DispatchRecord runs the full gate/download/parse/route/publish algorithm for one RawMailRef. Any
// terminal error is returned to the caller, who is responsible for
// publishing it to the DLQ: the DLQ write itself is the caller's concern
// so that the dispatcher stays free of a circular dependency on its own
// failure channel.
func (d *InboundDispatcher) DispatchRecord(ctx context.Context, ref events.RawMailRef) error {
	start := d.Now()
	defer func() {
		d.Metrics.RecordHistogram("inbound_dispatch_duration", time.Since(start).Seconds(), "seconds", nil)
	}()

	verdicts := security.Verdicts{}
	if ref.HasVerdicts {
		verdicts = security.Verdicts{
			SPF:   security.ParseVerdict(ref.SPFVerdict),
			DKIM:  security.ParseVerdict(ref.DKIMVerdict),
			Spam:  security.ParseVerdict(ref.SpamVerdict),
			Virus: security.ParseVerdict(ref.VirusVerdict),
		}
	}

	sizeHint := int64(-1)
	if ref.HasSize {
		sizeHint = ref.Size
	}
	if err := security.Gate(d.Cfg.Security, verdicts, sizeHint); err != nil {
		d.Metrics.RecordCounter("inbound_rejected", 1, map[string]string{"reason": "security_gate"})
		return err
	}
	if verdicts.SpamFlagged() {
		d.Log.Msg("message flagged as spam, continuing per policy", map[string]interface{}{"bucket": ref.Bucket, "key": ref.Key})
	}

	var raw []byte
	err := retry.Do(ctx, d.RetryCfg, func(ctx context.Context) error {
		b, err := d.Store.Download(ctx, ref.Bucket, ref.Key)
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	if err != nil {
		return err
	}

	if int64(len(raw)) > config.MaxEmailSize {
		d.Metrics.RecordCounter("inbound_rejected", 1, map[string]string{"reason": "oversized"})
		return exterrors.New(exterrors.KindValidation, "downloaded message exceeds the 40 MiB size cap")
	}

	e, err := mimepkg.Parse(raw, d.Now())
	if err != nil {
		d.Metrics.RecordCounter("inbound_rejected", 1, map[string]string{"reason": "parse_error"})
		return err
	}

	if len(d.Cfg.Security.AllowedSenderDomains) > 0 {
		domain := email.Domain(e.From.Address)
		if !d.Cfg.Security.AllowedSenderDomains[domain] {
			d.Metrics.RecordCounter("inbound_rejected", 1, map[string]string{"reason": "sender_domain"})
			return exterrors.New(exterrors.KindValidation, "sender domain is not in the allowlist")
		}
	}

	if err := ratelimit.Check(ctx, d.Limiter, e.From.Address, d.Cfg.Security.MaxEmailsPerSenderPerHour, 3600, d.Now().Unix()); err != nil {
		d.Metrics.RecordCounter("inbound_rejected", 1, map[string]string{"reason": "rate_limited"})
		return err
	}

	if len(e.TransientAttachmentBlobs) > 0 {
		attachments, err := d.Materializer.Materialize(ctx, e.MessageID, e.TransientAttachmentBlobs)
		if err != nil {
			return err
		}
		e.Attachments = attachments
	}

	destinations := routing.Resolve(d.Cfg, e)

	for _, dest := range destinations {
		exists, err := d.Queue.Exists(ctx, dest.QueueURL)
		if err != nil {
			return err
		}
		if !exists {
			return exterrors.New(exterrors.KindRouting, fmt.Sprintf("target queue for app %q does not exist: %s", dest.AppName, dest.QueueURL))
		}

		env := buildInboundEnvelope(e, dest, verdicts, d.Now())
		body, err := env.Marshal()
		if err != nil {
			return err
		}

		if err := retry.Do(ctx, d.RetryCfg, func(ctx context.Context) error {
			_, err := d.Queue.Send(ctx, dest.QueueURL, string(body))
			return err
		}); err != nil {
			return err
		}
		d.Metrics.RecordCounter("inbound_routed", 1, map[string]string{"app": dest.AppName})
	}

	return nil
}

func buildInboundEnvelope(e *email.Email, dest routing.Destination, verdicts security.Verdicts, now time.Time) events.InboundEnvelope {
	payload := events.InboundEnvelopeEmail{
		From:     e.From.Address,
		To:       addressStrings(e.To),
		Cc:       addressStrings(e.Cc),
		Subject:  e.Subject,
		BodyText: e.Body.Text,
		BodyHTML: e.Body.HTML,
	}
	for _, a := range e.Attachments {
		payload.Attachments = append(payload.Attachments, events.InboundEnvelopeAttachment{
			Filename:     a.SanitizedFilename,
			ContentType:  a.DeclaredContentType,
			Size:         a.Size,
			Bucket:       a.Bucket,
			Key:          a.Key,
			PresignedURL: a.PresignedURL,
			ChecksumMD5:  a.ChecksumMD5,
			Status:       string(a.Status),
			Error:        a.Error,
		})
	}

	domain := "unknown"
	if len(e.To) > 0 {
		if d := email.Domain(e.To[0].Address); d != "" {
			domain = d
		}
	}

	var spamScore float32
	if verdicts.SpamFlagged() {
		spamScore = 1.0
	}

	metadata := events.InboundEnvelopeMetadata{
		RoutingKey:   dest.AppName,
		Domain:       domain,
		SpamScore:    spamScore,
		DKIMVerified: verdicts.DKIM == authres.ResultPass,
		SPFVerified:  verdicts.SPF == authres.ResultPass,
	}

	return events.NewInboundEnvelope(payload, now, metadata)
}

func addressStrings(addrs []email.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Address
	}
	return out
}
