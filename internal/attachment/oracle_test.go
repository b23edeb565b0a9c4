package attachment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifyAcceptsPDF(t *testing.T) {
	ct, err := Identify("report.pdf", []byte("%PDF-1.4"))
	assert.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
}

func TestIdentifyAcceptsTextFamilyRegardlessOfContent(t *testing.T) {
	ct, err := Identify("notes.txt", []byte("anything at all"))
	assert.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
}

func TestIdentifyRejectsBlockedExtension(t *testing.T) {
	// P5: blocklisted extensions are rejected regardless of bytes.
	_, err := Identify("virus.exe", []byte{0x4D, 0x5A, 0x90, 0x00})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestIdentifyRejectsUnknownExtension(t *testing.T) {
	_, err := Identify("file.xyz", []byte{0x00})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestIdentifyRejectsMismatchedMagicBytes(t *testing.T) {
	_, err := Identify("fake.pdf", []byte{0x00, 0x00, 0x00, 0x00})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "magic bytes")
}

func TestIdentifyRejectsMissingExtension(t *testing.T) {
	_, err := Identify("noextension", []byte{0x00})
	assert.Error(t, err)
}
