// Package bucket provides the S3 bucket and object operations behind
// s3-manage: bucket lifecycle, uploads, downloads, streaming reads and
// versioning.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	awsclient "github.com/gurre/aws-manage/aws"
)

// DefaultRegion is used when no region is given for a new bucket.
const DefaultRegion = "us-east-2"

// ErrBucketNotFound is returned when a bucket does not exist.
var ErrBucketNotFound = errors.New("bucket not found")

// LineStreamer reads an object line by line starting at a byte offset. It is
// satisfied by s3streamer.Streamer.
type LineStreamer interface {
	Stream(ctx context.Context, bucket, key string, offset int64, fn func(line []byte, offset int64) error) error
}

// Info describes a bucket.
type Info struct {
	Name         string    `json:"name"`
	Region       string    `json:"region,omitempty"`
	CreationDate time.Time `json:"creationDate"`
}

// Manager runs bucket operations against one S3 client.
type Manager struct {
	client      awsclient.S3Client
	streamer    LineStreamer
	waitTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStreamer sets the streamer used by Cat.
func WithStreamer(s LineStreamer) Option {
	return func(m *Manager) {
		m.streamer = s
	}
}

// WithWaitTimeout bounds the bucket deletion waiter.
func WithWaitTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.waitTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// New creates a Manager using the injected client.
func New(client awsclient.S3Client, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		waitTimeout: 5 * time.Minute,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create creates a bucket in region, DefaultRegion when empty. us-east-1
// takes no location constraint.
func (m *Manager) Create(ctx context.Context, name, region string) error {
	if name == "" {
		return fmt.Errorf("bucket name is required")
	}
	if region == "" {
		region = DefaultRegion
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := m.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s in %s: %w", name, region, err)
	}
	m.log.Info().Str("bucket", name).Str("region", region).Msg("Created bucket")
	return nil
}

// List returns every bucket owned by the caller.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	return m.list(ctx, "")
}

func (m *Manager) list(ctx context.Context, prefix string) ([]Info, error) {
	input := &s3.ListBucketsInput{}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var buckets []Info
	paginator := s3.NewListBucketsPaginator(m.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list buckets: %w", err)
		}
		for _, b := range page.Buckets {
			buckets = append(buckets, Info{
				Name:         aws.ToString(b.Name),
				Region:       aws.ToString(b.BucketRegion),
				CreationDate: aws.ToTime(b.CreationDate),
			})
		}
	}
	return buckets, nil
}

// Get returns the named bucket. When the bucket is missing it is created in
// region if create is set, otherwise ErrBucketNotFound is returned.
func (m *Manager) Get(ctx context.Context, name string, create bool, region string) (Info, error) {
	head, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			return Info{}, fmt.Errorf("failed to get bucket %s: %w", name, err)
		}
		if !create {
			return Info{}, fmt.Errorf("%w: %s", ErrBucketNotFound, name)
		}
		if err := m.Create(ctx, name, region); err != nil {
			return Info{}, err
		}
		return m.Get(ctx, name, false, region)
	}

	info := Info{Name: name, Region: aws.ToString(head.BucketRegion)}
	buckets, err := m.list(ctx, name)
	if err != nil {
		return Info{}, err
	}
	for _, b := range buckets {
		if b.Name == name {
			info.CreationDate = b.CreationDate
			break
		}
	}
	m.log.Debug().Str("bucket", name).Time("created", info.CreationDate).Msg("Found bucket")
	return info, nil
}

// Upload puts the local file at filePath under key keyPrefix+filePath and
// returns the key.
func (m *Manager) Upload(ctx context.Context, bucket, filePath, keyPrefix string) (string, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type of %s: %w", filePath, err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	key := keyPrefix + filepath.ToSlash(filePath)
	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(mtype.String()),
	}); err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", filePath, bucket, key, err)
	}

	m.log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Str("size", humanize.Bytes(uint64(stat.Size()))).
		Str("contentType", mtype.String()).
		Msg("Uploaded object")
	return key, nil
}

// Download writes the object, or the given version of it, to
// destDir/basename(key) and returns the local path.
func (m *Manager) Download(ctx context.Context, bucket, key, destDir, versionID string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	out, err := m.client.GetObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	dest := filepath.Join(destDir, path.Base(key))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}

	n, err := io.Copy(f, out.Body)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", dest, err)
	}

	m.log.Info().Str("key", key).Str("path", dest).Str("size", humanize.Bytes(uint64(n))).Msg("Downloaded object")
	return dest, nil
}

// Cat writes the object to w one line at a time.
func (m *Manager) Cat(ctx context.Context, w io.Writer, bucket, key string) error {
	if m.streamer == nil {
		return fmt.Errorf("no streamer configured")
	}
	err := m.streamer.Stream(ctx, bucket, key, 0, func(line []byte, _ int64) error {
		if _, err := w.Write(line); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to stream s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// EnableVersioning turns on versioning and returns the resulting status.
func (m *Manager) EnableVersioning(ctx context.Context, bucket string) (types.BucketVersioningStatus, error) {
	if _, err := m.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	}); err != nil {
		return "", fmt.Errorf("failed to enable versioning on %s: %w", bucket, err)
	}

	out, err := m.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", fmt.Errorf("failed to get versioning of %s: %w", bucket, err)
	}
	return out.Status, nil
}

// Delete removes the named bucket, or every bucket when name is empty, and
// returns how many were deleted. Buckets must be empty. When deleting every
// bucket, failures are logged and skipped.
func (m *Manager) Delete(ctx context.Context, name string) (int, error) {
	if name != "" {
		if _, err := m.Get(ctx, name, false, ""); err != nil {
			return 0, err
		}
		if err := m.deleteOne(ctx, name); err != nil {
			return 0, err
		}
		return 1, nil
	}

	buckets, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, b := range buckets {
		if err := m.deleteOne(ctx, b.Name); err != nil {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			m.log.Warn().Err(err).Str("bucket", b.Name).Msg("Skipping bucket")
			continue
		}
		count++
	}
	return count, nil
}

func (m *Manager) deleteOne(ctx context.Context, name string) error {
	if _, err := m.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", name, err)
	}

	waiter := s3.NewBucketNotExistsWaiter(m.client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}, m.waitTimeout); err != nil {
		return fmt.Errorf("failed waiting for bucket %s deletion: %w", name, err)
	}
	m.log.Info().Str("bucket", name).Msg("Deleted bucket")
	return nil
}

// CreateTempFile writes content repeated size times to dir/<name>.txt and
// returns the path. A random name is used when name is empty and "0" when
// content is empty.
func CreateTempFile(dir, name, content string, size int) (string, error) {
	if name == "" {
		name = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if content == "" {
		content = "0"
	}
	if size < 0 {
		return "", fmt.Errorf("size must not be negative")
	}

	p := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(p, []byte(strings.Repeat(content, size)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return p, nil
}
