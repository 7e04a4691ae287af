package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores image bytes and returns a URL they can be fetched from
type Uploader interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// ObjectStoreConfig holds S3-compatible connection settings
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
	// PublicURL is the base objects are served from. Defaults to the
	// endpoint and bucket.
	PublicURL string
}

// ObjectStore keeps images in an S3-compatible bucket under content
// addressed keys, so uploading the same bytes twice yields the same URL.
type ObjectStore struct {
	cl        *minio.Client
	bucket    string
	publicURL string
	log       *log.Logger
}

// NewObjectStore creates a minio client for cfg
func NewObjectStore(cfg ObjectStoreConfig, logger *log.Logger) (*ObjectStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &ObjectStore{cl: cl, bucket: cfg.Bucket, publicURL: public, log: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	s.log.Printf("creating bucket %q", s.bucket)
	return s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// Put uploads data and returns its public URL
func (s *ObjectStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := ObjectKey(data, contentType)
	info, err := s.cl.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.log.Printf("stored %s (%d bytes)", key, info.Size)
	return s.publicURL + "/" + key, nil
}

// Delete removes the object behind a URL returned by Put
func (s *ObjectStore) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok {
		return fmt.Errorf("url %q does not belong to this store", url)
	}
	return s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// ObjectKey derives the content-addressed key for data
func ObjectKey(data []byte, contentType string) string {
	key := fmt.Sprintf("images/%x", sha256.Sum256(data))
	return key + extensions[contentType]
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}
