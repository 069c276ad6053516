package model

import "time"

// ThumbnailStatus is the generation state of one variant.
type ThumbnailStatus string

const (
	StatusPending ThumbnailStatus = "pending"
	StatusReady   ThumbnailStatus = "ready"
	StatusFailed  ThumbnailStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s ThumbnailStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Thumbnail tracks one (image, size) variant. Path is set only when ready and
// Error only when failed. Attempt starts at 1 and grows with each explicit retry.
type Thumbnail struct {
	ID        string          `json:"id"`
	ImageID   string          `json:"image_id"`
	Size      Size            `json:"size"`
	Status    ThumbnailStatus `json:"status"`
	Path      *string         `json:"path"`
	Error     *string         `json:"error"`
	Attempt   int             `json:"attempt"`
	UpdatedAt time.Time       `json:"updated_at"`
}
