package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/akidb/akidb/internal/akierr"
)

// S3Config configures the S3-compatible cold-tier backend. Endpoint is
// optional and lets this adapter target MinIO or any other S3-compatible
// service for tests (see internal/testutil).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible services (MinIO, R2, ...)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // required by most S3-compatible services
}

// S3Store implements Store against an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	retry  RetryConfig
	logger *slog.Logger
}

// NewS3Store builds an S3Store, resolving credentials the way the AWS SDK
// default chain does unless AccessKeyID/SecretAccessKey are set explicitly.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{client: client, bucket: cfg.Bucket, retry: DefaultRetryConfig(), logger: logger}, nil
}

func (s *S3Store) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	var out []byte
	err := WithRetry(ctx, s.retry, func() error {
		input := &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}
		if rng != nil {
			input.Range = aws.String(httpRange(*rng))
		}
		resp, err := s.client.GetObject(ctx, input)
		if err != nil {
			return classifyS3Error("s3.get", key, err)
		}
		defer resp.Body.Close() //nolint:errcheck // read-only response body
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return akierr.Wrap(akierr.KindTransient, "s3.get", "read body", err)
		}
		out = data
		return nil
	})
	return out, err
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, ifMatch string) (string, error) {
	var version string
	err := WithRetry(ctx, s.retry, func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		}
		if ifMatch != "" {
			input.IfMatch = aws.String(ifMatch)
		} else {
			input.IfNoneMatch = aws.String("*")
		}
		resp, err := s.client.PutObject(ctx, input)
		if err != nil {
			return classifyS3ConditionalError("s3.put", key, err)
		}
		if resp.ETag != nil {
			version = strings.Trim(*resp.ETag, `"`)
		}
		return nil
	})
	return version, err
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	return WithRetry(ctx, s.retry, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classifyS3Error("s3.delete", key, err)
		}
		return nil
	})
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := WithRetry(ctx, s.retry, func() error {
		out = out[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return classifyS3Error("s3.list", prefix, err)
			}
			for _, obj := range page.Contents {
				info := ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
				if obj.ETag != nil {
					info.Version = strings.Trim(*obj.ETag, `"`)
				}
				out = append(out, info)
			}
		}
		return nil
	})
	return out, err
}

func httpRange(rng ByteRange) string {
	if rng.Length <= 0 {
		return fmt.Sprintf("bytes=%d-", rng.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1)
}

// classifyS3Error maps an AWS SDK error into the akierr taxonomy: a missing
// key is NotFound, and the listed throttling/5xx error codes are Transient
// (retryable by WithRetry). Every other error is also wrapped as Transient,
// so this adapter classes no S3 error as permanent and WithRetry retries
// all of them.
func classifyS3Error(op, key string, err error) error {
	var notFoundErr *s3.NoSuchKey
	if errors.As(err, &notFoundErr) {
		return notFound(op, key)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return notFound(op, key)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "ThrottlingException":
			return akierr.Wrap(akierr.KindTransient, op, "transient s3 error", err)
		}
	}
	return akierr.Wrap(akierr.KindTransient, op, "s3 request failed", err)
}

func classifyS3ConditionalError(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "PreconditionFailed" {
			return conflict(op, key)
		}
	}
	return classifyS3Error(op, key, err)
}
