// Package attachment implements the attachment materializer (C3) and the
// file-type oracle it calls, covering the upload/presign half and the
// magic-byte file-type whitelist the oracle checks against.
package attachment

import (
	"bytes"
	"strings"
)

// signature is one (content-type, extension, magic-bytes-prefix) entry.
type signature struct {
	contentType string
	ext         string
	magic       []byte
}

// whitelist is the allowed file-signatures table; text-family entries
// carry no magic prefix.
var whitelist = []signature{
	{"image/jpeg", "jpg", []byte{0xFF, 0xD8, 0xFF}},
	{"image/jpeg", "jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"image/png", "png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"image/gif", "gif", []byte{0x47, 0x49, 0x46, 0x38}},
	{"image/webp", "webp", []byte{0x52, 0x49, 0x46, 0x46}}, // RIFF
	{"image/bmp", "bmp", []byte{0x42, 0x4D}},
	{"image/tiff", "tiff", []byte{0x49, 0x49, 0x2A, 0x00}},
	{"image/tiff", "tif", []byte{0x49, 0x49, 0x2A, 0x00}},
	{"application/pdf", "pdf", []byte{0x25, 0x50, 0x44, 0x46}}, // %PDF
	{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"application/vnd.openxmlformats-officedocument.presentationml.presentation", "pptx", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"application/zip", "zip", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"text/plain", "txt", nil},
	{"text/csv", "csv", nil},
	{"text/html", "html", nil},
	{"text/xml", "xml", nil},
	{"application/json", "json", nil},
}

// blockedExtensions must be rejected regardless of magic bytes.
var blockedExtensions = map[string]bool{
	"exe": true, "bat": true, "cmd": true, "com": true, "pif": true,
	"scr": true, "vbs": true, "js": true, "jar": true, "msi": true,
	"app": true, "deb": true, "rpm": true, "dmg": true, "pkg": true,
	"sh": true, "bash": true, "ps1": true, "dll": true, "so": true,
	"dylib": true, "sys": true, "ocx": true,
}

// extension returns the lowercased substring after the last '.', or "" if
// filename has none.
func extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// Identify runs the file-type oracle () and returns the content-type
// that accepted filename/content, or an error describing why it was
// rejected. P5: the returned content-type always matches the whitelist
// entry that accepted the pair; blocklisted extensions are rejected
// unconditionally.
func Identify(filename string, content []byte) (string, error) {
	ext := extension(filename)
	if ext == "" {
		return "", errNoExtension(filename)
	}
	if blockedExtensions[ext] {
		return "", errBlocked(filename)
	}

	var candidates []signature
	for _, sig := range whitelist {
		if sig.ext == ext {
			candidates = append(candidates, sig)
		}
	}
	if len(candidates) == 0 {
		return "", errNotAllowed(ext)
	}

	for _, sig := range candidates {
		if len(sig.magic) == 0 {
			return sig.contentType, nil
		}
		if bytes.HasPrefix(content, sig.magic) {
			return sig.contentType, nil
		}
	}
	return "", errMagicMismatch(filename, ext)
}
