package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCS keeps blobs in a Cloud Storage bucket. Writes only create objects that
// do not exist yet; content addressing makes an existing object equivalent.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

func (b *GCS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	writer := b.client.Bucket(b.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			return key, nil
		}
		return "", fmt.Errorf("blob: uploading %s to gcs: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			return key, nil
		}
		return "", fmt.Errorf("blob: finalizing %s in gcs: %w", key, err)
	}
	return key, nil
}

func (b *GCS) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := cleanKey(ref)
	if err != nil {
		return nil, err
	}
	reader, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("blob: downloading %s from gcs: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("blob: reading %s from gcs: %w", key, err)
	}
	return data, nil
}

// alreadyExists reports whether a conditional create failed because the
// object is already there.
func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
