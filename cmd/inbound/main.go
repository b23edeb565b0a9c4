// Command inbound runs the inbound dispatch loop (C1): it polls the
// ingress queue for SES/S3 notification events, resolves each referenced
// raw-mail object, and runs it through InboundDispatcher. Wiring the
// substrate clients and the poll loop is mechanical and out of the core
// scope; the dispatching logic itself lives in internal/dispatch.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"mailflow/internal/attachment"
	"mailflow/internal/config"
	"mailflow/internal/dispatch"
	"mailflow/internal/events"
	zlog "mailflow/internal/log"
	"mailflow/internal/metrics"
	"mailflow/internal/substrate/objectstore"
	"mailflow/internal/substrate/queue"
	"mailflow/internal/substrate/ratelimit"
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

	limiter, err := ratelimit.OpenSQLiteLimiter(envOr("RATE_LIMIT_DB_PATH", "/tmp/mailflow-ratelimit.db"))
	if err != nil {
		log.Fatalf("failed to open rate-limit store: %v", err)
	}
	defer limiter.Close()

	materializer := attachment.NewMaterializer(store, cfg.Attachments)
	sink := metrics.New(cfg.MetricsNamespace)
	dispatcher := dispatch.NewInboundDispatcher(cfg, store, sqsQueue, limiter, materializer, sink)

	ingressQueueURL := os.Getenv("INGRESS_QUEUE_URL")
	logger := zlog.New("cmd.inbound")

	for {
		select {
		case <-ctx.Done():
			zlog.Sync()
			return
		default:
		}

		records, err := sqsQueue.Receive(ctx, ingressQueueURL, 10, 20)
		if err != nil {
			logger.Error("failed to receive ingress records", err, nil)
			time.Sleep(time.Second)
			continue
		}

		for _, rec := range records {
			processIngressRecord(ctx, dispatcher, sqsQueue, cfg.RawEmailsBucket, cfg.DLQURL, ingressQueueURL, rec, logger)
		}
	}
}

func processIngressRecord(ctx context.Context, d *dispatch.InboundDispatcher, q *queue.SQSQueue, defaultBucket, dlqURL, ingressQueueURL string, rec queue.Record, logger zlog.Logger) {
	refs, err := events.ParseInboundEvent([]byte(rec.Body), defaultBucket)
	if err != nil {
		logger.Error("failed to parse ingress event", err, map[string]interface{}{"body": rec.Body})
		publishDLQ(ctx, q, dlqURL, events.HandlerInbound, err, map[string]interface{}{"body": rec.Body})
		_ = q.Delete(ctx, ingressQueueURL, rec.ReceiptHandle)
		return
	}

	for _, ref := range refs {
		if err := d.DispatchRecord(ctx, ref); err != nil {
			logger.Error("inbound dispatch failed", err, map[string]interface{}{"bucket": ref.Bucket, "key": ref.Key})
			publishDLQ(ctx, q, dlqURL, events.HandlerInbound, err, map[string]interface{}{"bucket": ref.Bucket, "key": ref.Key})
		}
	}

	if err := q.Delete(ctx, ingressQueueURL, rec.ReceiptHandle); err != nil {
		logger.Error("failed to delete ingress record", err, nil)
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
