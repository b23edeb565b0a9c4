package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sesEventJSON = `{
  "Records": [{
    "eventSource": "aws:ses",
    "ses": {
      "mail": {"messageId": "m1", "source": "alice@ex.com", "destination": ["sales@ex.com"]},
      "receipt": {
        "spfVerdict": {"status": "PASS"},
        "dkimVerdict": {"status": "PASS"},
        "spamVerdict": {"status": "PASS"},
        "virusVerdict": {"status": "PASS"},
        "action": {"type": "S3", "bucketName": "raw-mail", "objectKey": "m1"}
      }
    }
  }]
}`

const s3EventJSON = `{
  "Records": [{
    "eventSource": "aws:s3",
    "s3": {"bucket": {"name": "raw-mail"}, "object": {"key": "m2", "size": 1024}}
  }]
}`

func TestParseInboundEventSES(t *testing.T) {
	refs, err := ParseInboundEvent([]byte(sesEventJSON), "fallback-bucket")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	r := refs[0]
	assert.Equal(t, "raw-mail", r.Bucket)
	assert.Equal(t, "m1", r.Key)
	assert.True(t, r.HasVerdicts)
	assert.Equal(t, "PASS", r.SPFVerdict)
	assert.Equal(t, "PASS", r.DKIMVerdict)
	assert.Equal(t, "alice@ex.com", r.FromHint)
}

func TestParseInboundEventS3(t *testing.T) {
	refs, err := ParseInboundEvent([]byte(s3EventJSON), "fallback-bucket")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	r := refs[0]
	assert.Equal(t, "raw-mail", r.Bucket)
	assert.Equal(t, "m2", r.Key)
	assert.False(t, r.HasVerdicts, "S3 event should carry no verdicts")
	assert.True(t, r.HasSize)
	assert.EqualValues(t, 1024, r.Size)
}

func TestParseInboundEventUnrecognizedSource(t *testing.T) {
	_, err := ParseInboundEvent([]byte(`{"Records":[{"eventSource":"aws:sns"}]}`), "b")
	assert.Error(t, err)
}

func TestParseInboundEventNoRecords(t *testing.T) {
	_, err := ParseInboundEvent([]byte(`{"Records":[]}`), "b")
	assert.Error(t, err)
}

func TestParseInboundEventMalformedJSON(t *testing.T) {
	_, err := ParseInboundEvent([]byte(`not json`), "b")
	assert.Error(t, err)
}

func TestParseInboundEventSESFallsBackToDefaultBucket(t *testing.T) {
	const noBucketJSON = `{
	  "Records": [{
	    "eventSource": "aws:ses",
	    "ses": {
	      "mail": {"messageId": "m3", "source": "bob@ex.com"},
	      "receipt": {"action": {"type": "S3", "objectKey": "m3"}}
	    }
	  }]
	}`
	refs, err := ParseInboundEvent([]byte(noBucketJSON), "fallback-bucket")
	require.NoError(t, err)
	assert.Equal(t, "fallback-bucket", refs[0].Bucket)
}
