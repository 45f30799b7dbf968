// Package testutil provides shared test infrastructure for integration
// tests that require a real S3-compatible object store.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartMinIO()
//	    defer tc.Terminate()
//	    store, _ := tc.NewTestStore(context.Background(), testutil.TestLogger())
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/akidb/akidb/internal/objectstore"
)

const (
	minioAccessKey = "akidbtest"
	minioSecretKey = "akidbtestsecret"
	minioBucket    = "akidb-test"
)

// TestContainer wraps a testcontainers MinIO container with its endpoint.
type TestContainer struct {
	Container testcontainers.Container
	Endpoint  string
}

// MustStartMinIO starts a MinIO container exposing an S3-compatible API.
// Calls os.Exit(1) on failure (suitable for TestMain).
func MustStartMinIO() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioAccessKey,
			"MINIO_ROOT_PASSWORD": minioSecretKey,
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	endpoint := fmt.Sprintf("http://%s:%s", host, port.Port())
	return &TestContainer{Container: container, Endpoint: endpoint}
}

// NewTestStore creates the test bucket and returns an objectstore.S3Store
// pointed at this container.
func (tc *TestContainer) NewTestStore(ctx context.Context, logger *slog.Logger) (*objectstore.S3Store, error) {
	if err := tc.createBucket(ctx); err != nil {
		return nil, fmt.Errorf("testutil: create bucket: %w", err)
	}

	store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:        tc.Endpoint,
		Region:          "us-east-1",
		Bucket:          minioBucket,
		AccessKeyID:     minioAccessKey,
		SecretAccessKey: minioSecretKey,
		UsePathStyle:    true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create store: %w", err)
	}
	return store, nil
}

func (tc *TestContainer) createBucket(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(minioAccessKey, minioSecretKey, "")),
	)
	if err != nil {
		return err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(tc.Endpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(minioBucket)})
	return err
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
