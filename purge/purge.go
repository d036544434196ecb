// Package purge deletes every version of every object under a bucket,
// optionally restricted to a key prefix.
//
// Versions are enumerated lazily from ListObjectVersions and deleted with
// DeleteObjects in quiet mode, never more than MaxBatchSize per request.
// A failed request aborts the purge. Batches committed before the failure
// stay deleted.
package purge

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	awsclient "github.com/gurre/aws-manage/aws"
	"github.com/gurre/aws-manage/metrics"
)

// MaxBatchSize is the S3 limit on keys per DeleteObjects request.
const MaxBatchSize = 1000

// ObjectVersionRef identifies one stored version (or delete marker) of one object.
type ObjectVersionRef struct {
	Key       string
	VersionID string
}

// DeletionBatch is an ordered group of at most MaxBatchSize refs submitted
// in a single request.
type DeletionBatch []ObjectVersionRef

// BatchError reports a failed DeleteObjects request. Err is the provider
// error and is reachable with errors.As.
type BatchError struct {
	Batch     int // Zero-based index of the failed batch
	Size      int // Refs in the failed batch
	Committed int // Refs deleted by earlier batches
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("delete batch %d (%d versions, %d already deleted): %v", e.Batch, e.Size, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ObjectErrors carries the per-object failures S3 reports even in quiet mode.
type ObjectErrors []types.Error

func (e ObjectErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, oe := range e {
		parts = append(parts, fmt.Sprintf("%s@%s: %s", aws.ToString(oe.Key), aws.ToString(oe.VersionId), aws.ToString(oe.Code)))
	}
	return fmt.Sprintf("%d objects not deleted: %s", len(e), strings.Join(parts, "; "))
}

// Option configures a Purger.
type Option func(*Purger)

// WithBatchSize sets the number of refs per request, clamped to 1..MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Purger) {
		switch {
		case n < 1:
			p.batchSize = 1
		case n > MaxBatchSize:
			p.batchSize = MaxBatchSize
		default:
			p.batchSize = n
		}
	}
}

// WithMetrics records every submitted batch on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Purger) {
		p.metrics = m
	}
}

// WithLogger sets the logger used for per-batch progress.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Purger) {
		p.log = l
	}
}

// Purger deletes object versions in batches.
type Purger struct {
	client    awsclient.S3Client
	batchSize int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New creates a Purger using the injected S3 client.
func New(client awsclient.S3Client, opts ...Option) *Purger {
	p := &Purger{
		client:    client,
		batchSize: MaxBatchSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Versions lazily enumerates every version and delete marker in bucket whose
// key starts with prefix. Pages are fetched only as the sequence is consumed.
// An error ends the sequence.
func (p *Purger) Versions(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectVersionRef, error] {
	return func(yield func(ObjectVersionRef, error) bool) {
		input := &s3.ListObjectVersionsInput{
			Bucket: aws.String(bucket),
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		for {
			out, err := p.client.ListObjectVersions(ctx, input)
			if err != nil {
				yield(ObjectVersionRef{}, fmt.Errorf("failed to list object versions: %w", err))
				return
			}

			for _, v := range out.Versions {
				if !yield(ObjectVersionRef{Key: aws.ToString(v.Key), VersionID: aws.ToString(v.VersionId)}, nil) {
					return
				}
			}
			for _, m := range out.DeleteMarkers {
				if !yield(ObjectVersionRef{Key: aws.ToString(m.Key), VersionID: aws.ToString(m.VersionId)}, nil) {
					return
				}
			}

			if !aws.ToBool(out.IsTruncated) {
				return
			}
			input.KeyMarker = out.NextKeyMarker
			input.VersionIdMarker = out.NextVersionIdMarker
		}
	}
}

// Purge deletes all versions under bucket matching prefix and returns the
// number deleted. On failure it returns 0 and a *BatchError.
func (p *Purger) Purge(ctx context.Context, bucket, prefix string) (int, error) {
	batch := make(DeletionBatch, 0, p.batchSize)
	total := 0
	index := 0

	flush := func() error {
		if err := p.DeleteBatch(ctx, bucket, batch); err != nil {
			if p.metrics != nil {
				p.metrics.RecordError()
			}
			return &BatchError{Batch: index, Size: len(batch), Committed: total, Err: err}
		}
		if p.metrics != nil {
			p.metrics.RecordRequest(len(batch))
		}
		total += len(batch)
		p.log.Debug().Str("bucket", bucket).Int("batch", index).Int("size", len(batch)).Int("total", total).Msg("Deleted version batch")
		index++
		batch = batch[:0]
		return nil
	}

	for ref, err := range p.Versions(ctx, bucket, prefix) {
		if err != nil {
			return 0, err
		}
		batch = append(batch, ref)
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}

	if len(batch) > 0 {
		if err := flush(); err != nil {
			return 0, err
		}
	}

	return total, nil
}

// DeleteBatch submits one quiet DeleteObjects request for batch.
func (p *Purger) DeleteBatch(ctx context.Context, bucket string, batch DeletionBatch) error {
	if len(batch) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds limit of %d", len(batch), MaxBatchSize)
	}

	objects := make([]types.ObjectIdentifier, 0, len(batch))
	for _, ref := range batch {
		id := types.ObjectIdentifier{Key: aws.String(ref.Key)}
		if ref.VersionID != "" {
			id.VersionId = aws.String(ref.VersionID)
		}
		objects = append(objects, id)
	}

	out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		return ObjectErrors(out.Errors)
	}
	return nil
}
