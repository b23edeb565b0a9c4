package relay

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"mailflow/internal/exterrors"
)

// SESRelay is the production Relay backed by aws-sdk-go-v2/service/sesv2,
// the natural relay for a system whose inbound half already consumes SES
// gateway verdicts ().
type SESRelay struct {
	cl *sesv2.Client
}

func NewSESRelay(cl *sesv2.Client) *SESRelay {
	return &SESRelay{cl: cl}
}

func (r *SESRelay) SendRaw(ctx context.Context, raw []byte, from string, recipients []string) (string, error) {
	out, err := r.cl.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: recipients,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return "", exterrors.Wrap(exterrors.KindRelay, "relay send failed", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (r *SESRelay) SendQuota(ctx context.Context) (Quota, error) {
	out, err := r.cl.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return Quota{}, exterrors.Wrap(exterrors.KindRelay, "send-quota query failed", err)
	}
	q := Quota{}
	if out.SendQuota != nil {
		q.Max24hSend = int64(out.SendQuota.Max24HourSend)
		q.MaxSendRate = out.SendQuota.MaxSendRate
		q.SentLast24h = int64(out.SendQuota.SentLast24Hours)
	}
	return q, nil
}

func (r *SESRelay) VerifySender(ctx context.Context, address string) (bool, error) {
	out, err := r.cl.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(address),
	})
	if err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, exterrors.Wrap(exterrors.KindRelay, "verify-sender query failed", err)
	}
	return out.VerifiedForSendingStatus, nil
}
