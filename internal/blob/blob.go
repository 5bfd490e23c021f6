// Package blob stores encoded leaves. Keys are content addressed, so a write
// of the same bytes is idempotent and identical leaves share one object.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"cloud.google.com/go/storage"

	"flipbook-app/config"
	"flipbook-app/internal/helpers"
)

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrInvalidRef = errors.New("blob: invalid reference")
)

// Store puts and gets blobs. Put returns the reference to persist; Get
// accepts any reference Put returned.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// LeafKey is the content address of an encoded leaf under prefix.
func LeafKey(prefix string, data []byte) string {
	return path.Join(prefix, helpers.ContentHash(data)+".png")
}

// cleanKey rejects keys that would escape the store's root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, key)
	}
	return cleaned, nil
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "inline":
		return Inline{}, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("blob: s3 backend needs STORAGE_BUCKET")
		}
		awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
		if cfg.Endpoint != "" {
			awsCfg.Endpoint = aws.String(cfg.Endpoint)
			awsCfg.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("blob: creating AWS session: %w", err)
		}
		return NewS3(s3.New(sess), cfg.Bucket), nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, errors.New("blob: gcs backend needs STORAGE_BUCKET")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("blob: creating storage client: %w", err)
		}
		return NewGCS(client, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("blob: unknown storage backend %q", cfg.Backend)
	}
}
