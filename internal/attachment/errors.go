package attachment

import (
	"fmt"

	"mailflow/internal/exterrors"
)

func errNoExtension(filename string) error {
	return exterrors.New(exterrors.KindValidation, fmt.Sprintf("no file extension found: %s", filename))
}

func errBlocked(filename string) error {
	return exterrors.New(exterrors.KindValidation, fmt.Sprintf("file type not allowed: %s (blocked extension)", filename))
}

func errNotAllowed(ext string) error {
	return exterrors.New(exterrors.KindValidation, fmt.Sprintf("file type not allowed: .%s extension", ext))
}

func errMagicMismatch(filename, ext string) error {
	return exterrors.New(exterrors.KindValidation, fmt.Sprintf("file type mismatch: %s has extension .%s but magic bytes don't match expected signature", filename, ext))
}
