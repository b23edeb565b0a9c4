package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/internal/attachment"
	"mailflow/internal/config"
	"mailflow/internal/events"
	"mailflow/internal/metrics"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/queue"
	"mailflow/internal/substrate/ratelimit"
)

func testConfig() *config.RoutingConfig {
	return &config.RoutingConfig{
		Domains:          map[string]bool{"acme.com": true, "d.com": true},
		Routes:           map[string]config.Route{},
		DefaultQueue:     "q://default",
		UnknownQueue:     "q://unknown",
		RawEmailsBucket:  "raw-mail",
		Security: config.Security{
			MaxEmailsPerSenderPerHour: 100,
		},
		Attachments: config.Attachments{
			Bucket:       "attachments",
			MaxSize:      35 << 20,
			PresignedTTL: time.Hour,
		},
	}
}

func newTestDispatcher(cfg *config.RoutingConfig, store *objectstore.Mock, q *queue.Mock) *InboundDispatcher {
	return NewInboundDispatcher(cfg, store, q, ratelimit.NewMock(), attachment.NewMaterializer(store, cfg.Attachments), metrics.New("test"))
}

// Scenario 1: simple routing.
func TestDispatchRecordSimpleRouting(t *testing.T) {
	cfg := testConfig()
	cfg.Routes["billing"] = config.Route{QueueURL: "q://billing", Enabled: true}

	store := objectstore.NewMock()
	raw := "From: s@ex.com\r\nTo: _billing@acme.com\r\nSubject: Hi\r\n\r\nHi"
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m1", []byte(raw), "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://billing")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m1"})
	require.NoError(t, err)

	require.Len(t, q.Sent, 1)
	var env events.InboundEnvelope
	require.NoError(t, json.Unmarshal([]byte(q.Sent[0]), &env))
	assert.Equal(t, "billing", env.Metadata.RoutingKey)
	assert.Equal(t, "acme.com", env.Metadata.Domain)
	assert.Equal(t, "Hi", env.Email.Subject)
}

// Scenario 2: multi-app fanout.
func TestDispatchRecordMultiAppFanout(t *testing.T) {
	cfg := testConfig()
	cfg.Routes["a"] = config.Route{QueueURL: "q://a", Enabled: true}
	cfg.Routes["b"] = config.Route{QueueURL: "q://b", Enabled: true}

	store := objectstore.NewMock()
	raw := "From: s@ex.com\r\nTo: _a@d.com, _b@d.com\r\nSubject: Hi\r\n\r\nHi"
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m2", []byte(raw), "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://a")
	q.Declare("q://b")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m2"})
	require.NoError(t, err)

	require.Len(t, q.Sent, 2)
	keys := map[string]bool{}
	for _, body := range q.Sent {
		var env events.InboundEnvelope
		require.NoError(t, json.Unmarshal([]byte(body), &env))
		keys[env.Metadata.RoutingKey] = true
	}
	assert.True(t, keys["a"])
	assert.True(t, keys["b"])
}

// Scenario 3: attachment ingest.
func TestDispatchRecordAttachmentIngest(t *testing.T) {
	cfg := testConfig()

	store := objectstore.NewMock()
	pdfBytes := []byte{0x25, 0x50, 0x44, 0x46, 0x2D, 0x31, 0x2E, 0x34, 0x00, 0x01}
	raw := buildMultipartWithAttachment(t, "report.pdf", "application/pdf", pdfBytes)
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m3", raw, "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://default")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m3"})
	require.NoError(t, err)

	require.Len(t, q.Sent, 1)
	var env events.InboundEnvelope
	require.NoError(t, json.Unmarshal([]byte(q.Sent[0]), &env))
	require.Len(t, env.Email.Attachments, 1)
	att := env.Email.Attachments[0]
	assert.Equal(t, "Available", att.Status)
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.NotEmpty(t, att.ChecksumMD5)
}

// Scenario 4: blocked extension.
func TestDispatchRecordBlockedExtension(t *testing.T) {
	cfg := testConfig()

	store := objectstore.NewMock()
	exeBytes := []byte{0x4D, 0x5A, 0x90, 0x00}
	raw := buildMultipartWithAttachment(t, "virus.exe", "application/octet-stream", exeBytes)
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m4", raw, "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://default")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m4"})
	require.NoError(t, err)

	require.Len(t, q.Sent, 1)
	var env events.InboundEnvelope
	require.NoError(t, json.Unmarshal([]byte(q.Sent[0]), &env))
	require.Len(t, env.Email.Attachments, 1)
	att := env.Email.Attachments[0]
	assert.Equal(t, "Failed", att.Status)
	assert.Contains(t, att.Error, "blocked")
}

func TestDispatchRecordFailsWhenRouteQueueMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Routes["billing"] = config.Route{QueueURL: "q://billing", Enabled: true}

	store := objectstore.NewMock()
	raw := "From: s@ex.com\r\nTo: _billing@acme.com\r\nSubject: Hi\r\n\r\nHi"
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m5", []byte(raw), "message/rfc822"))

	q := queue.NewMock() // q://billing never declared

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m5"})
	assert.Error(t, err)
}

// TestDispatchRecordAllowlistIgnoresMissingFromHint covers a record with no
// FromHint set (the S3-object-storage-notification shape never carries
// one) and an allowlist that matches the real From address, which is only
// known after parsing: the record must not be rejected pre-parse for lack
// of a hint.
func TestDispatchRecordAllowlistIgnoresMissingFromHint(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedSenderDomains = map[string]bool{"ex.com": true}

	store := objectstore.NewMock()
	raw := "From: s@ex.com\r\nTo: recipient@acme.com\r\nSubject: Hi\r\n\r\nHi"
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m6", []byte(raw), "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://default")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m6"})
	require.NoError(t, err)
	require.Len(t, q.Sent, 1)
}

func TestDispatchRecordRejectsSenderDomainNotInAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedSenderDomains = map[string]bool{"other.com": true}

	store := objectstore.NewMock()
	raw := "From: s@ex.com\r\nTo: recipient@acme.com\r\nSubject: Hi\r\n\r\nHi"
	require.NoError(t, store.Upload(context.Background(), "raw-mail", "m7", []byte(raw), "message/rfc822"))

	q := queue.NewMock()
	q.Declare("q://default")

	d := newTestDispatcher(cfg, store, q)
	err := d.DispatchRecord(context.Background(), events.RawMailRef{Bucket: "raw-mail", Key: "m7"})
	assert.Error(t, err)
}

func buildMultipartWithAttachment(t *testing.T, filename, contentType string, content []byte) []byte {
	t.Helper()
	boundary := "BOUNDARY123"
	var sb []byte
	sb = append(sb, []byte("From: s@ex.com\r\nTo: recipient@acme.com\r\nSubject: Attached\r\n"+
		"MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=\""+boundary+"\"\r\n\r\n"+
		"--"+boundary+"\r\nContent-Type: text/plain\r\n\r\nSee attached.\r\n"+
		"--"+boundary+"\r\nContent-Type: "+contentType+"\r\n"+
		"Content-Disposition: attachment; filename=\""+filename+"\"\r\n"+
		"Content-Transfer-Encoding: base64\r\n\r\n")...)
	sb = append(sb, []byte(base64.StdEncoding.EncodeToString(content))...)
	sb = append(sb, []byte("\r\n--"+boundary+"--\r\n")...)
	return sb
}
