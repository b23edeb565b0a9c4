package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/internal/config"
	"mailflow/internal/metrics"
	"mailflow/internal/substrate/idempotency"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/relay"
)

func newTestOutboundDispatcher(cfg *config.RoutingConfig, store objectstore.Store, idem idempotency.Store, r *relay.Mock) *OutboundDispatcher {
	return NewOutboundDispatcher(cfg, store, idem, r, metrics.New("test"))
}

func noopDelete(ctx context.Context) error { return nil }

func TestDispatchRecordSendsAndRecordsIdempotency(t *testing.T) {
	cfg := testConfig()
	store := objectstore.NewMock()
	idem := idempotency.NewMock()
	r := relay.NewMock()
	r.Verified["a@ex.com"] = true
	r.Quota = relay.Quota{Max24hSend: 1000, SentLast24h: 0}

	d := newTestOutboundDispatcher(cfg, store, idem, r)

	body := `{"correlation_id":"c-1","from":"a@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello"}`
	req, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "c-1", req.CorrelationID)

	require.Len(t, r.Sent, 1)
	assert.Equal(t, "a@ex.com", r.Sent[0].From)
	assert.Equal(t, []string{"b@ex.com"}, r.Sent[0].Recipients)

	dup, err := idem.IsDuplicate(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, dup)
}

// Scenario 5: duplicate outbound.
func TestDispatchRecordSkipsDuplicate(t *testing.T) {
	cfg := testConfig()
	store := objectstore.NewMock()
	idem := idempotency.NewMock()
	r := relay.NewMock()
	r.Verified["a@ex.com"] = true
	r.Quota = relay.Quota{Max24hSend: 1000, SentLast24h: 0}

	d := newTestOutboundDispatcher(cfg, store, idem, r)
	body := `{"correlation_id":"c-1","from":"a@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello"}`

	_, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	require.NoError(t, err)
	require.Len(t, r.Sent, 1)

	// Re-enqueued with the same correlation-id: second call must not send again.
	_, err = d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	require.NoError(t, err)
	assert.Len(t, r.Sent, 1)
}

func TestDispatchRecordFailsOnSchemaError(t *testing.T) {
	cfg := testConfig()
	d := newTestOutboundDispatcher(cfg, objectstore.NewMock(), idempotency.NewMock(), relay.NewMock())

	req, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: "not json", Delete: noopDelete})
	assert.Error(t, err)
	assert.Nil(t, req)
}

func TestDispatchRecordFailsWhenSenderUnverified(t *testing.T) {
	cfg := testConfig()
	r := relay.NewMock() // nothing verified
	d := newTestOutboundDispatcher(cfg, objectstore.NewMock(), idempotency.NewMock(), r)

	body := `{"correlation_id":"c-2","from":"unverified@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello"}`
	req, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	assert.Error(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "c-2", req.CorrelationID)
	assert.Empty(t, r.Sent)
}

func TestDispatchRecordFailsWhenQuotaExhausted(t *testing.T) {
	cfg := testConfig()
	r := relay.NewMock()
	r.Verified["a@ex.com"] = true
	r.Quota = relay.Quota{Max24hSend: 10, SentLast24h: 10}
	idem := idempotency.NewMock()
	d := newTestOutboundDispatcher(cfg, objectstore.NewMock(), idem, r)

	body := `{"correlation_id":"c-3","from":"a@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello"}`
	_, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	assert.Error(t, err)
	assert.Empty(t, r.Sent)

	dup, derr := idem.IsDuplicate(context.Background(), "c-3")
	require.NoError(t, derr)
	assert.False(t, dup, "quota exhaustion must not consume idempotency")
}

// Scenario 6, at the dispatcher level: threading headers survive the
// compose step and reach the relay's raw bytes.
func TestDispatchRecordComposesThreadingHeaders(t *testing.T) {
	cfg := testConfig()
	r := relay.NewMock()
	r.Verified["a@ex.com"] = true
	r.Quota = relay.Quota{Max24hSend: 1000}
	d := newTestOutboundDispatcher(cfg, objectstore.NewMock(), idempotency.NewMock(), r)

	body := `{"correlation_id":"c-4","from":"a@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello","in_reply_to":"m1@x","references":["r1@x","r2@x"]}`
	_, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	require.NoError(t, err)

	require.Len(t, r.Sent, 1)
	raw := string(r.Sent[0].Raw)
	assert.Contains(t, raw, "In-Reply-To: <m1@x>")
	assert.Contains(t, raw, "References: <r1@x> <r2@x>")
}

func TestDispatchRecordFetchesAttachmentFromObjectStore(t *testing.T) {
	cfg := testConfig()
	store := objectstore.NewMock()
	require.NoError(t, store.Upload(context.Background(), "attachments", "m5/report.pdf", []byte("%PDF-1.4"), "application/pdf"))

	r := relay.NewMock()
	r.Verified["a@ex.com"] = true
	r.Quota = relay.Quota{Max24hSend: 1000}
	d := newTestOutboundDispatcher(cfg, store, idempotency.NewMock(), r)

	body := `{"correlation_id":"c-5","from":"a@ex.com","to":["b@ex.com"],"subject":"hi","body_text":"hello",` +
		`"attachments":[{"filename":"report.pdf","content_type":"application/pdf","bucket":"attachments","key":"m5/report.pdf"}]}`
	_, err := d.DispatchRecord(context.Background(), "q://outbound", DequeuedRecord{Body: body, Delete: noopDelete})
	require.NoError(t, err)

	require.Len(t, r.Sent, 1)
	assert.Contains(t, string(r.Sent[0].Raw), "report.pdf")
}
