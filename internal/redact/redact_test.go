package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringRedactsEmailTokens(t *testing.T) {
	in := "delivery to alice@example.com failed, cc bob.smith+test@sub.example.co.uk too"
	out := String(in)

	assert.NotContains(t, out, "alice@example.com")
	assert.NotContains(t, out, "bob.smith+test")
	assert.Contains(t, out, "***@example.com")
	assert.Contains(t, out, "***@sub.example.co.uk")
}

func TestStringLeavesNonEmailTextAlone(t *testing.T) {
	in := "queue q://billing is unreachable"
	assert.Equal(t, in, String(in))
}

func TestSubjectTruncation(t *testing.T) {
	assert.Equal(t, "Hi", Subject("Hi"))
	assert.Equal(t, "Inv...[24 chars]", Subject("Invoice #4821 is overdue"))
}

func TestFieldsRedactsAddressValues(t *testing.T) {
	in := map[string]interface{}{
		"to":     "user@example.com",
		"count":  3,
		"detail": "sent by ops@example.com",
	}
	out := Fields(in)

	assert.Equal(t, "***@example.com", out["to"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "sent by ***@example.com", out["detail"])
}
