// Package tests3 starts disposable LocalStack containers for S3 file store
// tests.
package tests3

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image  = "localstack/localstack:4"
	bucket = "advisor-test-files"
)

// StartS3 runs a throwaway LocalStack with an empty bucket and points the
// aws-sdk-go-v2 default config at it through AWS_* env vars, so production
// loaders connect without code changes. Returns the bucket name.
func StartS3(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"4566/tcp"},
		Env:          map[string]string{"SERVICES": "s3"},
		WaitingFor: wait.ForListeningPort("4566/tcp").
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		tb.Fatalf("start localstack container: %v", err)
	}
	tb.Cleanup(func() { terminate(tb, container) })

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	if err != nil {
		tb.Fatalf("resolve localstack endpoint: %v", err)
	}

	for key, value := range map[string]string{
		"AWS_ENDPOINT_URL":      endpoint,
		"AWS_ACCESS_KEY_ID":     "test",
		"AWS_SECRET_ACCESS_KEY": "test",
		"AWS_REGION":            "us-east-1",
	} {
		tb.Setenv(key, value)
	}

	createBucket(tb, ctx, endpoint)
	return bucket
}

func terminate(tb testing.TB, container testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := container.Terminate(ctx); err != nil {
		tb.Errorf("terminate localstack container: %v", err)
	}
}

func createBucket(tb testing.TB, ctx context.Context, endpoint string) {
	tb.Helper()

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		awsconfig.WithRegion("us-east-1"),
	)
	if err != nil {
		tb.Fatalf("load aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		tb.Fatalf("create bucket %s: %v", bucket, err)
	}
}
