package dispatch

import (
	"context"
	"fmt"
	"time"

	"mailflow/internal/config"
	"mailflow/internal/email"
	"mailflow/internal/events"
	"mailflow/internal/exterrors"
	"mailflow/internal/log"
	"mailflow/internal/metrics"
	mimepkg "mailflow/internal/mime"
	"mailflow/internal/retry"
	"mailflow/internal/substrate/idempotency"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/relay"
)

// idempotencyTTLSeconds is the 24h idempotency record TTL.
const idempotencyTTLSeconds = 24 * 60 * 60

// OutboundDispatcher implements C5: validate, dedupe, verify, compose and
// relay one dequeued OutboundRequest at a time.
type OutboundDispatcher struct {
	Cfg         *config.RoutingConfig
	Store       objectstore.Store
	Idempotency idempotency.Store
	Relay       relay.Relay
	Metrics     *metrics.Sink
	Log         log.Logger
	RetryCfg    retry.Config
	Now         func() time.Time
}

// NewOutboundDispatcher wires the default retry policy and time.Now clock.
func NewOutboundDispatcher(cfg *config.RoutingConfig, store objectstore.Store, idem idempotency.Store, r relay.Relay, sink *metrics.Sink) *OutboundDispatcher {
	return &OutboundDispatcher{
		Cfg:         cfg,
		Store:       store,
		Idempotency: idem,
		Relay:       r,
		Metrics:     sink,
		Log:         log.New("dispatch.outbound"),
		RetryCfg:    retry.DefaultConfig(),
		Now:         time.Now,
	}
}

// outcome distinguishes the three terminal shapes a dispatch can take:
// a genuine failure (DLQ-worthy), a duplicate skip (not DLQ-worthy), or a
// clean send. Only the failure case carries a non-nil error.
type outcome int

const (
	outcomeSent outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// DispatchRecord runs the full validate/dedupe/verify/compose/relay
// algorithm for one dequeued record and always deletes it from queueURL
// afterward — per step 9, a delete failure is logged but never
// re-raised, since idempotency already guards against a duplicate send
// on redelivery. The returned error is non-nil only for outcomeFailed;
// the caller is responsible for writing a DLQ entry in that case
// (handler="outbound"), mirroring InboundDispatcher's division of
// responsibility. The returned *events.OutboundRequest is the parsed
// request when parsing got far enough to produce one (nil if the body
// itself was not valid JSON/failed validation), so the caller can pull
// the correlation id into its DLQ context without re-parsing rec.Body.
func (d *OutboundDispatcher) DispatchRecord(ctx context.Context, queueURL string, rec DequeuedRecord) (*events.OutboundRequest, error) {
	start := d.Now()
	defer func() {
		d.Metrics.RecordHistogram("outbound_dispatch_duration", time.Since(start).Seconds(), "seconds", nil)
	}()

	oc, req, err := d.process(ctx, rec.Body)

	if delErr := rec.Delete(ctx); delErr != nil {
		d.Log.Error("failed to delete outbound record after processing", delErr, map[string]interface{}{"queue": queueURL})
	}

	switch oc {
	case outcomeDuplicate:
		d.Metrics.RecordCounter("outbound_duplicate", 1, nil)
		if req != nil {
			d.Log.Msg("duplicate outbound request, skipping send", map[string]interface{}{"correlationId": req.CorrelationID})
		}
		return req, nil
	case outcomeSent:
		d.Metrics.RecordCounter("outbound_sent", 1, nil)
		return req, nil
	default:
		d.Metrics.RecordCounter("outbound_failed", 1, map[string]string{"kind": string(exterrors.KindOf(err))})
		return req, err
	}
}

// DequeuedRecord is the minimal shape DispatchRecord needs from a queue
// record: its body and a closure that deletes it. Decoupling from
// queue.Queue/Record directly lets callers batch the receive/delete
// bookkeeping however their queue client requires.
type DequeuedRecord struct {
	Body   string
	Delete func(ctx context.Context) error
}

func (d *OutboundDispatcher) process(ctx context.Context, body string) (outcome, *events.OutboundRequest, error) {
	req, err := events.ParseOutboundRequest([]byte(body))
	if err != nil {
		return outcomeFailed, nil, err
	}

	if err := validateAddresses(req); err != nil {
		return outcomeFailed, req, err
	}

	dup, err := d.Idempotency.IsDuplicate(ctx, req.CorrelationID)
	if err != nil {
		return outcomeFailed, req, err
	}
	if dup {
		return outcomeDuplicate, req, nil
	}

	verified, err := d.Relay.VerifySender(ctx, req.From)
	if err != nil {
		return outcomeFailed, req, err
	}
	if !verified {
		return outcomeFailed, req, exterrors.New(exterrors.KindValidation, fmt.Sprintf("sender %q is not verified with the outbound relay", req.From))
	}

	quota, err := d.Relay.SendQuota(ctx)
	if err != nil {
		return outcomeFailed, req, err
	}
	// A negative Max24hSend means the relay reports no 24h cap.
	if quota.Max24hSend >= 0 && quota.SentLast24h >= quota.Max24hSend {
		return outcomeFailed, req, exterrors.New(exterrors.KindRelay, "outbound relay's 24h send quota is exhausted")
	}

	composeReq, err := d.buildComposeRequest(ctx, req)
	if err != nil {
		return outcomeFailed, req, err
	}

	raw, err := mimepkg.Compose(*composeReq)
	if err != nil {
		return outcomeFailed, req, err
	}

	recipients := append(append(append([]string{}, req.To...), req.Cc...), req.Bcc...)

	var messageID string
	sendErr := retry.Do(ctx, d.RetryCfg, func(ctx context.Context) error {
		id, err := d.Relay.SendRaw(ctx, raw, req.From, recipients)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if sendErr != nil {
		return outcomeFailed, req, sendErr
	}
	d.Log.Msg("sent outbound message", map[string]interface{}{"correlationId": req.CorrelationID, "relayMessageId": messageID})

	if err := d.Idempotency.Record(ctx, req.CorrelationID, idempotencyTTLSeconds); err != nil {
		return outcomeFailed, req, err
	}

	return outcomeSent, req, nil
}

func validateAddresses(req *events.OutboundRequest) error {
	if !email.ValidAddress(req.From) {
		return exterrors.New(exterrors.KindValidation, fmt.Sprintf("from address %q is not a valid email address", req.From))
	}
	for _, group := range [][]string{req.To, req.Cc, req.Bcc} {
		for _, addr := range group {
			if !email.ValidAddress(addr) {
				return exterrors.New(exterrors.KindValidation, fmt.Sprintf("recipient address %q is not a valid email address", addr))
			}
		}
	}
	return nil
}

func (d *OutboundDispatcher) buildComposeRequest(ctx context.Context, req *events.OutboundRequest) (*mimepkg.ComposeRequest, error) {
	cr := &mimepkg.ComposeRequest{
		From:       mimepkg.ComposeAddress{Address: req.From},
		To:         toComposeAddresses(req.To),
		Cc:         toComposeAddresses(req.Cc),
		Subject:    req.Subject,
		Text:       req.BodyText,
		HTML:       req.BodyHTML,
		InReplyTo:  req.InReplyTo,
		References: req.References,
	}

	for _, a := range req.Attachments {
		var content []byte
		err := retry.Do(ctx, d.RetryCfg, func(ctx context.Context) error {
			b, err := d.Store.Download(ctx, a.Bucket, a.Key)
			if err != nil {
				return err
			}
			content = b
			return nil
		})
		if err != nil {
			return nil, exterrors.Wrap(exterrors.KindStorage, fmt.Sprintf("failed to fetch attachment %q", a.Filename), err)
		}
		cr.Attachments = append(cr.Attachments, mimepkg.AttachmentSource{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Bytes:       content,
		})
	}

	return cr, nil
}

func toComposeAddresses(addrs []string) []mimepkg.ComposeAddress {
	out := make([]mimepkg.ComposeAddress, len(addrs))
	for i, a := range addrs {
		out[i] = mimepkg.ComposeAddress{Address: a}
	}
	return out
}
