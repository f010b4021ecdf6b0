// Package s3storage moves transfer payloads between the staging and
// production buckets of a MinIO/S3 endpoint.
package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/DataBridge/internal/checksum"
	"github.com/dharsanguruparan/DataBridge/internal/config"
	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Storage wraps MinIO/S3 interactions for staged and delivered files.
type Storage struct {
	client           *minio.Client
	stagingBucket    string
	productionBucket string
	region           string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:           client,
		stagingBucket:    cfg.StagingBucket,
		productionBucket: cfg.ProductionBucket,
		region:           cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the staging/production buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.stagingBucket, s.productionBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// Put uploads a file into the staging bucket and returns its sha256 and
// size. The digest is stored as user metadata for later audits.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, int64, error) {
	pr, pw := io.Pipe()
	type result struct {
		sum string
		n   int64
		err error
	}
	hashed := make(chan result, 1)
	go func() {
		sum, n, err := checksum.Copy(pw, r)
		pw.CloseWithError(err)
		hashed <- result{sum, n, err}
	}()
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.stagingBucket, key, pr, size, opts)
	pr.CloseWithError(err)
	res := <-hashed
	if err != nil {
		return "", 0, fmt.Errorf("upload staged object: %w", err)
	}
	if res.err != nil {
		return "", 0, res.err
	}
	return res.sum, res.n, nil
}

// Open streams a staged object.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.stagingBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get staged object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, model.NotFoundf("object %s not found", key)
		}
		return nil, fmt.Errorf("stat staged object: %w", err)
	}
	return obj, nil
}

// Copy server-side copies a staged object into the production bucket, then
// re-reads the destination to compute its sha256.
func (s *Storage) Copy(ctx context.Context, srcKey, dstKey string) (string, error) {
	src := minio.CopySrcOptions{Bucket: s.stagingBucket, Object: srcKey}
	dst := minio.CopyDestOptions{Bucket: s.productionBucket, Object: dstKey}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return "", fmt.Errorf("copy %s to production: %w", srcKey, err)
	}
	obj, err := s.client.GetObject(ctx, s.productionBucket, dstKey, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get production object: %w", err)
	}
	defer obj.Close()
	sum, _, err := checksum.Reader(obj)
	if err != nil {
		return "", fmt.Errorf("read production object: %w", err)
	}
	return sum, nil
}

// PresignProduction returns a signed GET URL for a delivered file.
func (s *Storage) PresignProduction(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.productionBucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign production object: %w", err)
	}
	return u.String(), nil
}
