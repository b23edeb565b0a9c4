// Command outbound runs the outbound dispatch loop (C5): it polls the
// outbound request queue, validates and composes each OutboundRequest,
// and relays it through SES. Wiring the substrate clients and the poll
// loop is mechanical; the dispatching logic lives in internal/dispatch.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailflow/internal/config"
	"mailflow/internal/dispatch"
	"mailflow/internal/events"
	zlog "mailflow/internal/log"
	"mailflow/internal/metrics"
	"mailflow/internal/substrate/idempotency"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/queue"
	"mailflow/internal/substrate/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load AWS config: %v", err)
	}

	store, err := objectstore.NewMinioStore(
		os.Getenv("OBJECT_STORE_ENDPOINT"),
		os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		os.Getenv("OBJECT_STORE_SECRET_KEY"),
		os.Getenv("OBJECT_STORE_INSECURE") == "",
	)
	if err != nil {
		log.Fatalf("failed to construct object store client: %v", err)
	}

	sqsQueue := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg))
	sesRelay := relay.NewSESRelay(sesv2.NewFromConfig(awsCfg))

	idem, err := idempotency.OpenSQLiteStore(envOr("IDEMPOTENCY_DB_PATH", "/tmp/mailflow-idempotency.db"))
	if err != nil {
		log.Fatalf("failed to open idempotency store: %v", err)
	}
	defer idem.Close()

	sink := metrics.New(cfg.MetricsNamespace)
	dispatcher := dispatch.NewOutboundDispatcher(cfg, store, idem, sesRelay, sink)

	outboundQueueURL := os.Getenv("OUTBOUND_QUEUE_URL")
	logger := zlog.New("cmd.outbound")

	for {
		select {
		case <-ctx.Done():
			zlog.Sync()
			return
		default:
		}

		records, err := sqsQueue.Receive(ctx, outboundQueueURL, 10, 20)
		if err != nil {
			logger.Error("failed to receive outbound records", err, nil)
			time.Sleep(time.Second)
			continue
		}

		for _, rec := range records {
			rec := rec
			deq := dispatch.DequeuedRecord{
				Body: rec.Body,
				Delete: func(ctx context.Context) error {
					return sqsQueue.Delete(ctx, outboundQueueURL, rec.ReceiptHandle)
				},
			}
			req, err := dispatcher.DispatchRecord(ctx, outboundQueueURL, deq)
			if err != nil {
				logger.Error("outbound dispatch failed", err, map[string]interface{}{"queue": outboundQueueURL})
				messageID := ""
				if req != nil {
					messageID = req.CorrelationID
				}
				publishDLQ(ctx, sqsQueue, cfg.DLQURL, events.HandlerOutbound, err, map[string]interface{}{
					"message-id":            messageID,
					"original-message-body": rec.Body,
				})
			}
		}
	}
}

func publishDLQ(ctx context.Context, q *queue.SQSQueue, dlqURL string, handler events.Handler, err error, fields map[string]interface{}) {
	if dlqURL == "" {
		return
	}
	entry := events.NewDLQEntry(handler, err, fields, time.Now())
	body, merr := entry.Marshal()
	if merr != nil {
		return
	}
	_, _ = q.Send(ctx, dlqURL, string(body))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
