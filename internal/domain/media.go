package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind enumerates generated artifact types.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// FocalLengthUnset is rendered in place of an absent focal length.
const FocalLengthUnset = "N/A"

// MediaItem is a persisted generated artifact. Proxies are angle variants
// derived from a top-level item and always carry the parent's id.
type MediaItem struct {
	ID          int64
	Kind        MediaKind
	Prompt      string
	Locator     string
	Camera      string
	Lens        string
	FocalLength string
	IsFavorite  bool
	IsProxy     bool
	ParentID    *int64
	CreatedAt   time.Time
}

// DisplayFocalLength returns the focal length or the "N/A" sentinel.
func (m MediaItem) DisplayFocalLength() string {
	if strings.TrimSpace(m.FocalLength) == "" {
		return FocalLengthUnset
	}
	return m.FocalLength
}

// Validate checks the lineage invariant and required fields before insert.
func (m MediaItem) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown media kind %q", ErrInvalidRequest, m.Kind)
	}
	if strings.TrimSpace(m.Locator) == "" {
		return fmt.Errorf("%w: locator is required", ErrInvalidRequest)
	}
	if m.IsProxy && m.ParentID == nil {
		return fmt.Errorf("%w: proxy item requires a parent", ErrInvalidRequest)
	}
	if !m.IsProxy && m.ParentID != nil {
		return fmt.Errorf("%w: top-level item cannot have a parent", ErrInvalidRequest)
	}
	return nil
}

// UploadItem is a raw user-supplied source image. It is never updated.
type UploadItem struct {
	ID        int64
	Payload   string
	CreatedAt time.Time
}

// DeleteMode controls what happens to proxies when their parent is deleted.
type DeleteMode string

const (
	// DeleteDetach removes only the row; children stay listable as orphans.
	DeleteDetach DeleteMode = "detach"
	// DeleteCascade removes the row and every proxy parented to it.
	DeleteCascade DeleteMode = "cascade"
)

// ParseDeleteMode normalizes free-form input, defaulting to DeleteDetach.
func ParseDeleteMode(raw string) (DeleteMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(DeleteDetach):
		return DeleteDetach, nil
	case string(DeleteCascade):
		return DeleteCascade, nil
	default:
		return "", fmt.Errorf("%w: unknown delete mode %q", ErrInvalidRequest, raw)
	}
}
