package queue

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"mailflow/internal/exterrors"
)

// SQSQueue is the production Queue backed by aws-sdk-go-v2/service/sqs.
type SQSQueue struct {
	cl *sqs.Client
}

func NewSQSQueue(cl *sqs.Client) *SQSQueue {
	return &SQSQueue{cl: cl}
}

func (q *SQSQueue) Send(ctx context.Context, url, body string) (string, error) {
	out, err := q.cl.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", exterrors.Wrap(exterrors.KindQueue, "send failed", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (q *SQSQueue) SendBatch(ctx context.Context, url string, bodies []string) ([]string, error) {
	entries := make([]types.SendMessageBatchRequestEntry, len(bodies))
	ids := make([]string, len(bodies))
	for i, body := range bodies {
		id := batchEntryID(i)
		entries[i] = types.SendMessageBatchRequestEntry{
			Id:          aws.String(id),
			MessageBody: aws.String(body),
		}
	}
	out, err := q.cl.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(url),
		Entries:  entries,
	})
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindQueue, "send-batch failed", err)
	}
	byEntry := make(map[string]string, len(out.Successful))
	for _, s := range out.Successful {
		byEntry[aws.ToString(s.Id)] = aws.ToString(s.MessageId)
	}
	for i := range bodies {
		ids[i] = byEntry[batchEntryID(i)]
	}
	if len(out.Failed) > 0 {
		return ids, exterrors.New(exterrors.KindQueue, "one or more batch entries failed")
	}
	return ids, nil
}

func (q *SQSQueue) Receive(ctx context.Context, url string, max int32, wait int32) ([]Record, error) {
	out, err := q.cl.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     wait,
	})
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindQueue, "receive failed", err)
	}
	records := make([]Record, len(out.Messages))
	for i, m := range out.Messages {
		records[i] = Record{Body: aws.ToString(m.Body), ReceiptHandle: aws.ToString(m.ReceiptHandle)}
	}
	return records, nil
}

func (q *SQSQueue) Delete(ctx context.Context, url, receiptHandle string) error {
	_, err := q.cl.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return exterrors.Wrap(exterrors.KindQueue, "delete failed", err)
	}
	return nil
}

// Exists treats a NonExistentQueue signal specially and returns false
// rather than propagating it as an error.
func (q *SQSQueue) Exists(ctx context.Context, url string) (bool, error) {
	_, err := q.cl.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(url),
	})
	if err == nil {
		return true, nil
	}
	var notExist *types.QueueDoesNotExist
	if errors.As(err, &notExist) {
		return false, nil
	}
	return false, exterrors.Wrap(exterrors.KindQueue, "exists check failed", err)
}

func batchEntryID(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	// Batches are capped at 10 entries by SQS itself; this fallback only
	// matters if a caller ignores that cap.
	return string(digits[(i/10)%10]) + string(digits[i%10])
}
