package attachment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"mailflow/internal/config"
	"mailflow/internal/email"
	"mailflow/internal/exterrors"
	"mailflow/internal/retry"
	"mailflow/internal/substrate/objectstore"
)

const (
	maxAttachmentsPerEmail = 50 //  step 1
	materializeParallelism = 4  //  reference cap
)

// Materializer implements C3: validate, hash, upload and presign every
// transient attachment blob produced by the MIME parser.
type Materializer struct {
	Store     objectstore.Store
	Cfg       config.Attachments
	RetryCfg  retry.Config
	Now       func() time.Time
}

// NewMaterializer wires a Materializer with the default retry
// policy and time.Now as the clock.
func NewMaterializer(store objectstore.Store, cfg config.Attachments) *Materializer {
	return &Materializer{Store: store, Cfg: cfg, RetryCfg: retry.DefaultConfig(), Now: time.Now}
}

// Materialize runs over every blob, bounded to materializeParallelism
// concurrent uploads (). Returns Validation if the blob count exceeds
// maxAttachmentsPerEmail; per-blob failures become status=Failed records
// rather than aborting the batch.
func (m *Materializer) Materialize(ctx context.Context, messageID string, blobs []email.TransientBlob) ([]email.Attachment, error) {
	if len(blobs) > maxAttachmentsPerEmail {
		return nil, exterrors.New(exterrors.KindValidation, fmt.Sprintf("too many attachments: %d exceeds the %d cap", len(blobs), maxAttachmentsPerEmail))
	}
	if len(blobs) == 0 {
		return nil, nil
	}

	safeMessageID := SanitizePathComponent(messageID)
	seen := map[string]int{}
	names := make([]string, len(blobs))
	for i, b := range blobs {
		names[i] = dedupeFilename(SanitizeFilename(b.Filename), seen)
	}

	out := make([]email.Attachment, len(blobs))
	sem := make(chan struct{}, materializeParallelism)
	var wg sync.WaitGroup
	for i, b := range blobs {
		wg.Add(1)
		go func(i int, b email.TransientBlob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = m.materializeOne(ctx, safeMessageID, names[i], b)
		}(i, b)
	}
	wg.Wait()

	return out, nil
}

func (m *Materializer) materializeOne(ctx context.Context, safeMessageID, sanitizedName string, b email.TransientBlob) email.Attachment {
	att := email.Attachment{
		OriginalFilename:    b.Filename,
		SanitizedFilename:   sanitizedName,
		DeclaredContentType: b.DeclaredContentType,
		Size:                int64(len(b.Bytes)),
	}

	if att.Size > m.Cfg.MaxSize {
		att.Status = email.AttachmentFailed
		att.Error = fmt.Sprintf("attachment exceeds max size of %d bytes", m.Cfg.MaxSize)
		return att
	}

	contentType, err := Identify(b.Filename, b.Bytes)
	if err != nil {
		att.Status = email.AttachmentFailed
		att.Error = err.Error()
		return att
	}
	att.DeclaredContentType = contentType

	sum := md5.Sum(b.Bytes)
	checksum := hex.EncodeToString(sum[:])

	key := safeMessageID + "/" + sanitizedName

	uploadErr := retry.Do(ctx, m.RetryCfg, func(ctx context.Context) error {
		return m.Store.Upload(ctx, m.Cfg.Bucket, key, b.Bytes, contentType)
	})
	if uploadErr != nil {
		att.Status = email.AttachmentFailed
		att.Error = uploadErr.Error()
		return att
	}

	var presignedURL string
	presignErr := retry.Do(ctx, m.RetryCfg, func(ctx context.Context) error {
		u, err := m.Store.PresignGet(ctx, m.Cfg.Bucket, key, m.Cfg.PresignedTTL)
		if err != nil {
			return err
		}
		presignedURL = u
		return nil
	})
	if presignErr != nil {
		att.Status = email.AttachmentFailed
		att.Error = presignErr.Error()
		return att
	}

	att.Bucket = m.Cfg.Bucket
	att.Key = key
	att.PresignedURL = presignedURL
	att.PresignedURLExpiry = m.Now().Add(m.Cfg.PresignedTTL)
	att.ChecksumMD5 = checksum
	att.Status = email.AttachmentAvailable
	return att
}
