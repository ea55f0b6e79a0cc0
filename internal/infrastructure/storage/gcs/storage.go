// Package gcs stores map assets in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/resilience"
	"github.com/kirillkom/plan-takeoff/internal/infrastructure/storage/sniff"
)

type Storage struct {
	client   *storage.Client
	bucket   string
	prefix   string
	executor *resilience.Executor
}

type Options struct {
	// Prefix is prepended to every object key.
	Prefix             string
	ResilienceExecutor *resilience.Executor
}

// New uses application default credentials.
func New(ctx context.Context, bucket string, options Options) (*Storage, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(options.Prefix, "/"),
		executor: options.ResilienceExecutor,
	}, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// Save streams data into the object. The upload body is not replayable, so
// it runs once outside the retry executor.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (domain.StoredObject, error) {
	name := s.objectName(key)
	body, mimeType := sniff.Reader(data)

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeType
	size, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return domain.StoredObject{}, domain.WrapError(domain.ErrTemporary, "gcs write", err)
	}
	if err := w.Close(); err != nil {
		return domain.StoredObject{}, domain.WrapError(domain.ErrTemporary, "gcs commit", err)
	}
	return domain.StoredObject{Path: key, Size: size, MimeType: mimeType}, nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := s.objectName(key)
	rc, err := resilience.Do(ctx, s.executor, "gcs.open", func(ctx context.Context) (io.ReadCloser, error) {
		return s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	}, classifyGCSError)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.NotFound("object", key)
		}
		return nil, wrapTemporary("gcs open", err)
	}
	return rc, nil
}

// Delete removes the object. A missing object is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	name := s.objectName(key)
	call := func(ctx context.Context) error {
		return s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	}
	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "gcs.delete", call, classifyGCSError)
	} else {
		err = call(ctx)
	}
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return wrapTemporary("gcs delete", err)
	}
	return nil
}

func (s *Storage) objectName(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

var classifyGCSError = resilience.TransientUnless(storage.ErrObjectNotExist, storage.ErrBucketNotExist)

func wrapTemporary(op string, err error) error {
	if classifyGCSError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
