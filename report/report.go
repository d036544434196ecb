// Package report persists the metrics report of a bulk operation to S3 or
// the local filesystem.
package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	awsclient "github.com/gurre/aws-manage/aws"
	"github.com/gurre/aws-manage/metrics"
)

// Store saves a report.
// Example:
//
//	store, err := report.NewStore(client, "s3://my-bucket/reports/purge.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = store.Save(ctx, m.GenerateReport())
type Store interface {
	Save(ctx context.Context, r metrics.Report) error
}

// NewStore picks the Store implementation for the URI scheme (s3 or file).
func NewStore(client awsclient.S3Client, uri string) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid report URI: %w", err)
	}
	switch u.Scheme {
	case "s3":
		return NewS3Store(client, uri)
	case "file":
		return NewFileStore(uri)
	}
	return nil, fmt.Errorf("invalid report URI scheme: %s", u.Scheme)
}

// S3Store writes reports to a single S3 object.
type S3Store struct {
	client awsclient.S3Client
	bucket string
	key    string
}

// NewS3Store creates a new S3Store instance from an S3 URI.
func NewS3Store(client awsclient.S3Client, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("S3 URI must name a bucket and key: %s", uri)
	}

	return &S3Store{
		client: client,
		bucket: u.Host,
		key:    key,
	}, nil
}

// Save uploads the report as JSON.
func (s *S3Store) Save(ctx context.Context, r metrics.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// FileStore writes reports to the local filesystem.
type FileStore struct {
	path string
}

// NewFileStore creates a new FileStore instance from a file URI.
// The path must be absolute.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("report path must be absolute: %s", cleanPath)
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{path: cleanPath}, nil
}

// Save writes the report as JSON, replacing any previous report.
func (f *FileStore) Save(ctx context.Context, r metrics.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}
