package domain

import "context"

// MediaRepository persists generated artifacts and their lineage.
type MediaRepository interface {
	Insert(ctx context.Context, item *MediaItem) error
	Get(ctx context.Context, id int64) (*MediaItem, error)
	ListHistory(ctx context.Context, limit int) ([]MediaItem, error)
	ListProxies(ctx context.Context, parentID int64) ([]MediaItem, error)
	Delete(ctx context.Context, id int64, mode DeleteMode) error
	SetFavorite(ctx context.Context, id int64, favorite bool) error
	Duplicate(ctx context.Context, id int64) (*MediaItem, error)
}

// UploadRepository persists raw source uploads.
type UploadRepository interface {
	Insert(ctx context.Context, item *UploadItem) error
	List(ctx context.Context, limit int) ([]UploadItem, error)
}
