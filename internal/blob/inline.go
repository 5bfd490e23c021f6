package blob

import (
	"context"
	"fmt"

	"flipbook-app/internal/leaf"
)

// Inline stores nothing: the reference is the leaf itself as a data URI.
type Inline struct{}

func (Inline) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType != "" && contentType != leaf.MIMEType {
		return "", fmt.Errorf("blob: inline storage only holds %s, got %s", leaf.MIMEType, contentType)
	}
	return leaf.Leaf{Data: data}.DataURI(), nil
}

func (Inline) Get(ctx context.Context, ref string) ([]byte, error) {
	data, err := leaf.ParseDataURI(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	return data, nil
}
