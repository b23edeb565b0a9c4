// Package queue defines the work-queue capability contract and
// an aws-sdk-go-v2/service/sqs-backed implementation.
package queue

import "context"

// Record is one received message.
type Record struct {
	Body          string
	ReceiptHandle string
}

// Queue is the queue capability: send, send-batch, receive, delete and
// exists.
type Queue interface {
	Send(ctx context.Context, url, body string) (string, error)
	SendBatch(ctx context.Context, url string, bodies []string) ([]string, error)
	Receive(ctx context.Context, url string, max int32, wait int32) ([]Record, error)
	Delete(ctx context.Context, url, receiptHandle string) error
	Exists(ctx context.Context, url string) (bool, error)
}
