package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/sqlinline"
)

// MediaRepositorySQLite implements domain.MediaRepository on the local studio
// database.
type MediaRepositorySQLite struct {
	db    *infra.SQLiteRunner
	clock Clock
}

// NewMediaRepositorySQLite constructs the repository. clock may be nil.
func NewMediaRepositorySQLite(db *infra.SQLiteRunner, clock Clock) *MediaRepositorySQLite {
	return &MediaRepositorySQLite{db: db, clock: clock}
}

func (r *MediaRepositorySQLite) Insert(ctx context.Context, item *domain.MediaItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	createdAt := r.clock.now()
	var parent sql.NullInt64
	if item.ParentID != nil {
		parent = sql.NullInt64{Int64: *item.ParentID, Valid: true}
	}
	var id int64
	err := r.db.QueryRow(ctx, sqlinline.SQLiteInsertMedia,
		string(item.Kind), item.Prompt, item.Locator, item.Camera, item.Lens, item.FocalLength,
		item.IsFavorite, item.IsProxy, parent, createdAt.UnixNano(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) && item.ParentID != nil {
		return parentInsertError(ctx, r.Get, *item.ParentID)
	}
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	item.ID = id
	item.CreatedAt = createdAt
	return nil
}

func (r *MediaRepositorySQLite) Get(ctx context.Context, id int64) (*domain.MediaItem, error) {
	item, err := scanMediaSQLite(r.db.QueryRow(ctx, sqlinline.SQLiteSelectMediaByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return item, nil
}

func (r *MediaRepositorySQLite) ListHistory(ctx context.Context, limit int) ([]domain.MediaItem, error) {
	return r.list(ctx, sqlinline.SQLiteListHistory, normalizeLimit(limit))
}

func (r *MediaRepositorySQLite) ListProxies(ctx context.Context, parentID int64) ([]domain.MediaItem, error) {
	return r.list(ctx, sqlinline.SQLiteListProxies, parentID)
}

func (r *MediaRepositorySQLite) list(ctx context.Context, query string, args ...any) ([]domain.MediaItem, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MediaItem, 0)
	for rows.Next() {
		item, err := scanMediaSQLite(rows)
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

func (r *MediaRepositorySQLite) Delete(ctx context.Context, id int64, mode domain.DeleteMode) error {
	query := sqlinline.SQLiteDeleteMedia
	if mode == domain.DeleteCascade {
		query = sqlinline.SQLiteDeleteMediaCascade
	}
	res, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return requireAffected(res, id)
}

func (r *MediaRepositorySQLite) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	res, err := r.db.Exec(ctx, sqlinline.SQLiteSetFavorite, id, favorite)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return requireAffected(res, id)
}

func (r *MediaRepositorySQLite) Duplicate(ctx context.Context, id int64) (*domain.MediaItem, error) {
	item, err := scanMediaSQLite(r.db.QueryRow(ctx, sqlinline.SQLiteDuplicateMedia, id, r.clock.now().UnixNano()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, duplicateError(ctx, r.Get, id)
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate media: %w", err)
	}
	return item, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanMediaSQLite(row rowScanner) (*domain.MediaItem, error) {
	var (
		item      domain.MediaItem
		kind      string
		parent    sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&item.ID, &kind, &item.Prompt, &item.Locator, &item.Camera, &item.Lens,
		&item.FocalLength, &item.IsFavorite, &item.IsProxy, &parent, &createdAt); err != nil {
		return nil, err
	}
	item.Kind = domain.MediaKind(kind)
	if parent.Valid {
		p := parent.Int64
		item.ParentID = &p
	}
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	return &item, nil
}

// UploadRepositorySQLite implements domain.UploadRepository on the local
// studio database.
type UploadRepositorySQLite struct {
	db    *infra.SQLiteRunner
	clock Clock
}

func NewUploadRepositorySQLite(db *infra.SQLiteRunner, clock Clock) *UploadRepositorySQLite {
	return &UploadRepositorySQLite{db: db, clock: clock}
}

func (r *UploadRepositorySQLite) Insert(ctx context.Context, item *domain.UploadItem) error {
	createdAt := r.clock.now()
	if err := r.db.QueryRow(ctx, sqlinline.SQLiteInsertUpload, item.Payload, createdAt.UnixNano()).Scan(&item.ID); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	item.CreatedAt = createdAt
	return nil
}

func (r *UploadRepositorySQLite) List(ctx context.Context, limit int) ([]domain.UploadItem, error) {
	rows, err := r.db.Query(ctx, sqlinline.SQLiteListUploads, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.UploadItem, 0)
	for rows.Next() {
		var (
			item      domain.UploadItem
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Payload, &createdAt); err != nil {
			return nil, err
		}
		item.CreatedAt = time.Unix(0, createdAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var (
	_ domain.MediaRepository  = (*MediaRepositorySQLite)(nil)
	_ domain.UploadRepository = (*UploadRepositorySQLite)(nil)
)
