package service

import "errors"

var (
	ErrIDRequired        = errors.New("id is required")
	ErrNotFound          = errors.New("image not found")
	ErrReaderNil         = errors.New("reader is nil")
	ErrUnsupportedType   = errors.New("unsupported image type")
	ErrTooLarge          = errors.New("image exceeds upload limit")
	ErrSizeNotConfigured = errors.New("thumbnail size not configured")
	ErrNotReady          = errors.New("thumbnail not ready")
)
