package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/akidb/akidb/internal/akierr"
)

// GCSConfig configures the Google Cloud Storage cold-tier backend.
type GCSConfig struct {
	Bucket string
}

// GCSStore implements Store against a Google Cloud Storage bucket.
// Conditional PUT uses GCS object generation preconditions: ifMatch is the
// decimal generation number returned by a prior Put, and an empty ifMatch
// means "only create if absent" (DoesNotExist precondition).
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	retry  RetryConfig
	logger *slog.Logger
}

// NewGCSStore builds a GCSStore using application-default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: create gcs client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		retry:  DefaultRetryConfig(),
		logger: logger,
	}, nil
}

func (g *GCSStore) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	var out []byte
	err := WithRetry(ctx, g.retry, func() error {
		obj := g.bucket.Object(key)
		var r *storage.Reader
		var err error
		if rng == nil {
			r, err = obj.NewReader(ctx)
		} else {
			r, err = obj.NewRangeReader(ctx, rng.Offset, rng.Length)
		}
		if err != nil {
			return classifyGCSError("gcs.get", key, err)
		}
		defer r.Close() //nolint:errcheck // read-only reader
		data, err := io.ReadAll(r)
		if err != nil {
			return akierr.Wrap(akierr.KindTransient, "gcs.get", "read object", err)
		}
		out = data
		return nil
	})
	return out, err
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte, ifMatch string) (string, error) {
	var version string
	err := WithRetry(ctx, g.retry, func() error {
		obj := g.bucket.Object(key)
		if ifMatch != "" {
			gen, parseErr := strconv.ParseInt(ifMatch, 10, 64)
			if parseErr != nil {
				return akierr.Wrap(akierr.KindInvalidInput, "gcs.put", "ifMatch is not a generation number", parseErr)
			}
			obj = obj.If(storage.Conditions{GenerationMatch: gen})
		} else {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		}

		w := obj.NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return akierr.Wrap(akierr.KindTransient, "gcs.put", "write object", err)
		}
		if err := w.Close(); err != nil {
			return classifyGCSConditionalError("gcs.put", key, err)
		}
		version = strconv.FormatInt(w.Attrs().Generation, 10)
		return nil
	})
	return version, err
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := WithRetry(ctx, g.retry, func() error {
		delErr := g.bucket.Object(key).Delete(ctx)
		if delErr != nil && !errors.Is(delErr, storage.ErrObjectNotExist) {
			return classifyGCSError("gcs.delete", key, delErr)
		}
		return nil
	})
	return err
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := WithRetry(ctx, g.retry, func() error {
		out = out[:0]
		it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return classifyGCSError("gcs.list", prefix, err)
			}
			out = append(out, ObjectInfo{
				Key:     attrs.Name,
				Size:    attrs.Size,
				Version: strconv.FormatInt(attrs.Generation, 10),
			})
		}
		return nil
	})
	return out, err
}

func classifyGCSError(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return notFound(op, key)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 404 {
			return notFound(op, key)
		}
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return akierr.Wrap(akierr.KindTransient, op, "transient gcs error", err)
		}
	}
	return akierr.Wrap(akierr.KindTransient, op, "gcs request failed", err)
}

func classifyGCSConditionalError(op, key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 412 {
		return conflict(op, key)
	}
	return classifyGCSError(op, key, err)
}
