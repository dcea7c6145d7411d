// Package s3store registers the "s3" file store backend. Report blobs are
// keyed by bare UUIDs; an optional prefix namespaces them inside a shared
// bucket at access time without ever being persisted.
package s3store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/consulta/advisor-service/internal/config"
	registryfilestore "github.com/consulta/advisor-service/internal/registry/filestore"
	"github.com/consulta/advisor-service/internal/tempfiles"
)

func init() {
	registryfilestore.Register(registryfilestore.Plugin{Name: "s3", Loader: load})
}

func load(ctx context.Context) (registryfilestore.FileStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: ADVISOR_SERVICE_S3_BUCKET is required")
	}
	client, err := newClient(ctx, cfg.S3UsePathStyle)
	if err != nil {
		return nil, err
	}
	return &blobStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		prefix:    strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		external:  strings.TrimSpace(cfg.S3ExternalEndpoint),
		tempDir:   cfg.ResolvedTempDir(),
	}, nil
}

// newClient resolves credentials through the default AWS chain. Checksum
// calculation is left to when it's required so MinIO-style endpoints that
// reject the newer checksum headers keep working.
func newClient(ctx context.Context, pathStyle bool) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	}), nil
}

type blobStore struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	external  string
	tempDir   string
}

var _ registryfilestore.FileStore = (*blobStore)(nil)

func (s *blobStore) objectKey(storageKey string) string {
	if s.prefix == "" {
		return storageKey
	}
	return s.prefix + "/" + storageKey
}

// Store uploads data under a fresh UUID key, hashing and size-checking as it
// goes. PutObject wants a seekable body with a known length, so the stream
// spools through a temp file first.
func (s *blobStore) Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryfilestore.StoreResult, error) {
	storageKey := uuid.New().String()
	hasher := sha256.New()
	limited := io.TeeReader(io.LimitReader(data, maxSize+1), hasher)

	tmp, size, cleanup, err := tempfiles.Spool(s.tempDir, "advisor-service-s3-upload-*", limited)
	if err != nil {
		return nil, fmt.Errorf("s3store: spool upload: %w", err)
	}
	defer cleanup()
	if size > maxSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", maxSize)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(storageKey)),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put object: %w", err)
	}

	return &registryfilestore.StoreResult{
		StorageKey: storageKey,
		Size:       size,
		SHA256:     fmt.Sprintf("%x", hasher.Sum(nil)),
	}, nil
}

func (s *blobStore) Retrieve(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get object: %w", err)
	}
	return resp.Body, nil
}

func (s *blobStore) Delete(ctx context.Context, storageKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	})
	return err
}

// GetSignedURL presigns a GetObject request for direct download.
func (s *blobStore) GetSignedURL(ctx context.Context, storageKey string, expiry time.Duration) (*url.URL, error) {
	resp, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("s3store: presign: %w", err)
	}
	signed, err := url.Parse(resp.URL)
	if err != nil {
		return nil, err
	}
	return s.rewriteToExternal(signed)
}

// rewriteToExternal swaps the signed URL's host for the configured external
// endpoint, so clients outside the cluster network can reach the bucket.
func (s *blobStore) rewriteToExternal(signed *url.URL) (*url.URL, error) {
	if s.external == "" {
		return signed, nil
	}
	external, err := url.Parse(s.external)
	if err != nil {
		return nil, fmt.Errorf("s3store: parse external endpoint: %w", err)
	}
	signed.Scheme = external.Scheme
	signed.Host = external.Host
	if path := strings.TrimRight(external.Path, "/"); path != "" {
		signed.Path = path + signed.Path
	}
	return signed, nil
}
