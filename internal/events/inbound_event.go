// Package events defines the wire-level JSON shapes for: the
// untagged inbound event union, the InboundEnvelope/OutboundRequest
// payloads, and the DLQ envelope.
package events

import (
	"encoding/json"

	"mailflow/internal/exterrors"
)

// RawMailRef identifies one raw-mail object to fetch and process.
type RawMailRef struct {
	Bucket string
	Key    string

	// Verdicts, zero-valued when the event carried none (the S3-notification
	// shape never does).
	SPFVerdict   string
	DKIMVerdict  string
	SpamVerdict  string
	VirusVerdict string
	HasVerdicts  bool

	Size     int64
	HasSize  bool
	FromHint string // ses.mail.source; informational only, "" for S3-notification events, never used for the post-parse allowlist check
}

type sesEnvelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
		SES         struct {
			Mail struct {
				MessageID string   `json:"messageId"`
				Source    string   `json:"source"`
				Timestamp string   `json:"timestamp"`
				Dest      []string `json:"destination"`
			} `json:"mail"`
			Receipt struct {
				Timestamp    string   `json:"timestamp"`
				Recipients   []string `json:"recipients"`
				SPFVerdict   struct{ Status string } `json:"spfVerdict"`
				DKIMVerdict  struct{ Status string } `json:"dkimVerdict"`
				SpamVerdict  struct{ Status string } `json:"spamVerdict"`
				VirusVerdict struct{ Status string } `json:"virusVerdict"`
				Action       struct {
					Type       string `json:"type"`
					BucketName string `json:"bucketName"`
					ObjectKey  string `json:"objectKey"`
				} `json:"action"`
			} `json:"receipt"`
		} `json:"ses"`
	} `json:"Records"`
}

type s3Envelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
		S3          struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size *int64 `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// eventSourcePeek is used only to discriminate the union before a full
// parse, per the DESIGN NOTES' "inspect Records[0].eventSource first"
// guidance — avoiding the fragile try-each-variant approach.
type eventSourcePeek struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
}

// ParseInboundEvent discriminates and decodes one of the two inbound event
// shapes, falling back to defaultBucket when the SES shape's
// action.bucketName is absent.
func ParseInboundEvent(raw []byte, defaultBucket string) ([]RawMailRef, error) {
	var peek eventSourcePeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "inbound event is not valid JSON", err)
	}
	if len(peek.Records) == 0 {
		return nil, exterrors.New(exterrors.KindValidation, "inbound event carries no records")
	}

	switch peek.Records[0].EventSource {
	case "aws:ses":
		return parseSESEvent(raw, defaultBucket)
	case "aws:s3":
		return parseS3Event(raw)
	default:
		return nil, exterrors.New(exterrors.KindValidation, "unrecognized eventSource: "+peek.Records[0].EventSource)
	}
}

func parseSESEvent(raw []byte, defaultBucket string) ([]RawMailRef, error) {
	var env sesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "malformed SES event", err)
	}
	out := make([]RawMailRef, 0, len(env.Records))
	for _, r := range env.Records {
		bucket := r.SES.Receipt.Action.BucketName
		if bucket == "" {
			bucket = defaultBucket
		}
		key := r.SES.Receipt.Action.ObjectKey
		if key == "" {
			key = r.SES.Mail.MessageID
		}
		out = append(out, RawMailRef{
			Bucket:       bucket,
			Key:          key,
			SPFVerdict:   r.SES.Receipt.SPFVerdict.Status,
			DKIMVerdict:  r.SES.Receipt.DKIMVerdict.Status,
			SpamVerdict:  r.SES.Receipt.SpamVerdict.Status,
			VirusVerdict: r.SES.Receipt.VirusVerdict.Status,
			HasVerdicts:  true,
			FromHint:     r.SES.Mail.Source,
		})
	}
	return out, nil
}

func parseS3Event(raw []byte) ([]RawMailRef, error) {
	var env s3Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, exterrors.Wrap(exterrors.KindValidation, "malformed S3 event", err)
	}
	out := make([]RawMailRef, 0, len(env.Records))
	for _, r := range env.Records {
		ref := RawMailRef{Bucket: r.S3.Bucket.Name, Key: r.S3.Object.Key}
		if r.S3.Object.Size != nil {
			ref.Size = *r.S3.Object.Size
			ref.HasSize = true
		}
		out = append(out, ref)
	}
	return out, nil
}
