package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/config"
)

// Area names. They mirror the workflow blob areas.
const (
	areaOriginals = "originals"
	areaFinal     = "final"
)

// Storage wraps MinIO/S3 interactions for original and final PDFs. Keys handed
// to callers are "<area>/<object>" and map to one bucket per area.
type Storage struct {
	client  *minio.Client
	buckets map[string]string
	region  string
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
		client: client,
		buckets: map[string]string{
			areaOriginals: cfg.RawBucket,
			areaFinal:     cfg.FinalBucket,
		},
		region: cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range s.buckets {
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

// Put uploads a PDF under a fresh UUID-prefixed object name.
func (s *Storage) Put(ctx context.Context, area, name string, data []byte) (string, error) {
	bucket, ok := s.buckets[area]
	if !ok {
		return "", fmt.Errorf("unknown storage area %q", area)
	}
	object := fmt.Sprintf("%s-%s", uuid.NewString(), path.Base(name))
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	if _, err := s.client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", apperr.Storage("put object", err)
	}
	return area + "/" + object, nil
}

// Get downloads the object behind key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	bucket, object, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Storage("get object", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, apperr.NotFound("get object", "file not found")
		}
		return nil, apperr.Storage("read object", err)
	}
	return buf, nil
}

// PresignURL returns a signed GET URL for key.
func (s *Storage) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	bucket, object, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("response-content-type", "application/pdf")
	u, err := s.client.PresignedGetObject(ctx, bucket, object, ttl, params)
	if err != nil {
		return "", apperr.Storage("presign object", err)
	}
	return u.String(), nil
}

func (s *Storage) resolve(key string) (bucket, object string, err error) {
	area, object, ok := strings.Cut(key, "/")
	if !ok || object == "" {
		return "", "", apperr.Validation("resolve key", "malformed storage key %q", key)
	}
	bucket, ok = s.buckets[area]
	if !ok {
		return "", "", apperr.Validation("resolve key", "unknown storage area %q", area)
	}
	return bucket, object, nil
}
