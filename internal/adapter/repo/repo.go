package repo

import (
	"context"
	"fmt"
	"math"
	"time"

	"cinemastudio/internal/domain"
)

// Clock supplies creation timestamps. Tests inject a deterministic clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}

// parentInsertError explains why an INSERT ... SELECT guarded by the parent
// check produced no row.
func parentInsertError(ctx context.Context, get func(context.Context, int64) (*domain.MediaItem, error), parentID int64) error {
	parent, err := get(ctx, parentID)
	if err != nil {
		return fmt.Errorf("parent %d: %w", parentID, err)
	}
	if parent.IsProxy {
		return fmt.Errorf("%w: parent %d is itself a proxy", domain.ErrInvalidRequest, parentID)
	}
	return fmt.Errorf("parent %d: %w", parentID, domain.ErrNotFound)
}

// duplicateError explains why a duplicate produced no row.
func duplicateError(ctx context.Context, get func(context.Context, int64) (*domain.MediaItem, error), id int64) error {
	src, err := get(ctx, id)
	if err != nil {
		return err
	}
	if src.IsProxy {
		return fmt.Errorf("%w: media %d is a proxy and cannot be duplicated", domain.ErrInvalidRequest, id)
	}
	return fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
}
