package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"thumbapi/internal/model"
	"thumbapi/internal/resize"
)

const (
	originalsPrefix = "originals"
	variantsPrefix  = "thumbnails"
)

// OriginalPath is the key of an uploaded original.
func OriginalPath(imageID, ext string) string {
	return path.Join(originalsPrefix, imageID+ext)
}

// VariantPath is the key of the variant for (imageID, size). It depends on
// nothing else, so paths can be rebuilt without the database.
func VariantPath(imageID string, size model.Size) string {
	return path.Join(variantsPrefix, imageID, size.String()+resize.Ext)
}

// VariantWriter persists resized variants at their deterministic paths.
type VariantWriter struct {
	store Storage
}

// NewVariantWriter wraps store.
func NewVariantWriter(store Storage) *VariantWriter {
	return &VariantWriter{store: store}
}

// Write stores data for (imageID, size), replacing a previous variant, and
// returns the stored path.
func (w *VariantWriter) Write(ctx context.Context, imageID string, size model.Size, data []byte) (string, error) {
	key := VariantPath(imageID, size)
	_, err := w.store.Put(ctx, key, bytes.NewReader(data), PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: resize.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("write variant %s: %w", key, err)
	}
	return key, nil
}

// Delete removes a stored variant. Missing paths are ignored.
func (w *VariantWriter) Delete(ctx context.Context, key string) error {
	if err := w.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
