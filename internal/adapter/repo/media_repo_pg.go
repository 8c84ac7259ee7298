package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/sqlinline"
)

// MediaRepositoryPG implements domain.MediaRepository using PostgreSQL.
type MediaRepositoryPG struct {
	db    infra.SQLExecutor
	clock Clock
}

// NewMediaRepositoryPG constructs the repository. clock may be nil.
func NewMediaRepositoryPG(db infra.SQLExecutor, clock Clock) *MediaRepositoryPG {
	return &MediaRepositoryPG{db: db, clock: clock}
}

// Insert stores item and assigns its id and creation time.
func (r *MediaRepositoryPG) Insert(ctx context.Context, item *domain.MediaItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	createdAt := r.clock.now()
	var id int64
	err := r.db.QueryRow(ctx, sqlinline.QInsertMedia,
		string(item.Kind), item.Prompt, item.Locator, item.Camera, item.Lens, item.FocalLength,
		item.IsFavorite, item.IsProxy, item.ParentID, createdAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) && item.ParentID != nil {
		return parentInsertError(ctx, r.Get, *item.ParentID)
	}
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	item.ID = id
	item.CreatedAt = createdAt
	return nil
}

// Get returns one media item.
func (r *MediaRepositoryPG) Get(ctx context.Context, id int64) (*domain.MediaItem, error) {
	item, err := scanMediaPG(r.db.QueryRow(ctx, sqlinline.QSelectMediaByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return item, nil
}

// ListHistory returns top-level items newest first.
func (r *MediaRepositoryPG) ListHistory(ctx context.Context, limit int) ([]domain.MediaItem, error) {
	return r.list(ctx, sqlinline.QListHistory, normalizeLimit(limit))
}

// ListProxies returns the proxies of parentID oldest first.
func (r *MediaRepositoryPG) ListProxies(ctx context.Context, parentID int64) ([]domain.MediaItem, error) {
	return r.list(ctx, sqlinline.QListProxies, parentID)
}

func (r *MediaRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.MediaItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MediaItem, 0)
	for rows.Next() {
		item, err := scanMediaPG(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a media item, and its proxies when mode is DeleteCascade.
func (r *MediaRepositoryPG) Delete(ctx context.Context, id int64, mode domain.DeleteMode) error {
	query := sqlinline.QDeleteMedia
	if mode == domain.DeleteCascade {
		query = sqlinline.QDeleteMediaCascade
	}
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetFavorite sets the favorite flag. Repeating the call is harmless.
func (r *MediaRepositoryPG) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	tag, err := r.db.Exec(ctx, sqlinline.QSetFavorite, id, favorite)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Duplicate clones a top-level item.
func (r *MediaRepositoryPG) Duplicate(ctx context.Context, id int64) (*domain.MediaItem, error) {
	item, err := scanMediaPG(r.db.QueryRow(ctx, sqlinline.QDuplicateMedia, id, r.clock.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, duplicateError(ctx, r.Get, id)
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate media: %w", err)
	}
	return item, nil
}

func scanMediaPG(row rowScanner) (*domain.MediaItem, error) {
	var (
		item      domain.MediaItem
		kind      string
		createdAt time.Time
	)
	if err := row.Scan(&item.ID, &kind, &item.Prompt, &item.Locator, &item.Camera, &item.Lens,
		&item.FocalLength, &item.IsFavorite, &item.IsProxy, &item.ParentID, &createdAt); err != nil {
		return nil, err
	}
	item.Kind = domain.MediaKind(kind)
	item.CreatedAt = createdAt.UTC()
	return &item, nil
}

// UploadRepositoryPG implements domain.UploadRepository using PostgreSQL.
type UploadRepositoryPG struct {
	db    infra.SQLExecutor
	clock Clock
}

// NewUploadRepositoryPG constructs the repository. clock may be nil.
func NewUploadRepositoryPG(db infra.SQLExecutor, clock Clock) *UploadRepositoryPG {
	return &UploadRepositoryPG{db: db, clock: clock}
}

// Insert stores an upload.
func (r *UploadRepositoryPG) Insert(ctx context.Context, item *domain.UploadItem) error {
	createdAt := r.clock.now()
	if err := r.db.QueryRow(ctx, sqlinline.QInsertUpload, item.Payload, createdAt).Scan(&item.ID); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	item.CreatedAt = createdAt
	return nil
}

// List returns uploads newest first.
func (r *UploadRepositoryPG) List(ctx context.Context, limit int) ([]domain.UploadItem, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListUploads, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.UploadItem, 0)
	for rows.Next() {
		var item domain.UploadItem
		if err := rows.Scan(&item.ID, &item.Payload, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var (
	_ domain.MediaRepository  = (*MediaRepositoryPG)(nil)
	_ domain.UploadRepository = (*UploadRepositoryPG)(nil)
)
