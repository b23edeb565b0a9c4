// Package security implements the pre-parse security gate (C4.8),
// consuming SMTP-gateway verdicts using github.com/emersion/go-msgauth's
// authres result vocabulary rather than inventing an ad hoc pass/fail enum.
package security

import (
	"strings"

	"github.com/emersion/go-msgauth/authres"

	"mailflow/internal/config"
	"mailflow/internal/exterrors"
)

const maxEmailSize = 40 << 20 // 40 MiB

// Verdicts carries the SMTP-gateway verdicts attached to an inbound event,
// per the SES receipt shape.
type Verdicts struct {
	SPF   authres.ResultValue
	DKIM  authres.ResultValue
	Spam  authres.ResultValue
	Virus authres.ResultValue // empty or ResultNone means "not present"
}

// ParseVerdict maps a raw SES-style verdict status string ("PASS", "FAIL",
// "GRAY", "PROCESSING_FAILED", ...) onto the authres result vocabulary.
func ParseVerdict(status string) authres.ResultValue {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PASS":
		return authres.ResultPass
	case "FAIL":
		return authres.ResultFail
	case "":
		return authres.ResultNone
	default:
		return authres.ResultValue(strings.ToLower(status))
	}
}

// Gate runs the verdict/size half of the security policy table, before
// parsing: it has no access to the real From address yet, so the
// sender-domain allowlist is checked separately once the message is
// parsed (see dispatch.InboundDispatcher). sizeBytes < 0 means "unknown
// at this point" and skips the size check (it is re-checked after
// download).
func Gate(cfg config.Security, v Verdicts, sizeBytes int64) error {
	if sizeBytes >= 0 && sizeBytes > maxEmailSize {
		return exterrors.New(exterrors.KindValidation, "message exceeds the 40 MiB size cap")
	}

	if cfg.RequireSPF && v.SPF != authres.ResultPass {
		return exterrors.New(exterrors.KindValidation, "SPF verdict did not pass")
	}
	if cfg.RequireDKIM && v.DKIM != authres.ResultPass {
		return exterrors.New(exterrors.KindValidation, "DKIM verdict did not pass")
	}
	if v.Virus != "" && v.Virus != authres.ResultNone && v.Virus != authres.ResultPass {
		return exterrors.New(exterrors.KindValidation, "virus verdict did not pass")
	}
	// Spam FAIL is logged by the caller, not rejected here.

	return nil
}

// SpamFlagged reports whether v carries a FAIL spam verdict, for the
// caller to log without rejecting (per the policy table).
func (v Verdicts) SpamFlagged() bool {
	return v.Spam == authres.ResultFail
}
