package studio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/reference"
	"cinemastudio/internal/storage"
)

// Get returns one item.
func (s *Service) Get(ctx context.Context, id int64) (*domain.MediaItem, error) {
	return s.media.Get(ctx, id)
}

// History lists top-level items newest first.
func (s *Service) History(ctx context.Context, limit int) ([]domain.MediaItem, error) {
	return s.media.ListHistory(ctx, limit)
}

// Proxies lists the angle variants of parentID oldest first.
func (s *Service) Proxies(ctx context.Context, parentID int64) ([]domain.MediaItem, error) {
	return s.media.ListProxies(ctx, parentID)
}

// Delete removes an item. In detach mode its proxies stay listable.
func (s *Service) Delete(ctx context.Context, id int64, mode domain.DeleteMode) error {
	if err := s.media.Delete(ctx, id, mode); err != nil {
		return err
	}
	s.logger.Info().Int64("media_id", id).Str("mode", string(mode)).Msg("studio: media deleted")
	return nil
}

// SetFavorite sets the favorite flag; repeating a call is a no-op.
func (s *Service) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.media.SetFavorite(ctx, id, favorite)
}

// Duplicate clones a top-level item.
func (s *Service) Duplicate(ctx context.Context, id int64) (*domain.MediaItem, error) {
	return s.media.Duplicate(ctx, id)
}

// Upload records a user-supplied source image. Inline payloads are written
// into uploads/ and recorded by their servable URL; anything else is kept
// verbatim.
func (s *Service) Upload(ctx context.Context, payload string) (*domain.UploadItem, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: base64Data is required", domain.ErrInvalidRequest)
	}
	item := &domain.UploadItem{Payload: payload}
	data, mime, err := reference.DecodeInline(payload)
	switch {
	case err == nil:
		stored, err := s.store.Save(ctx, storage.AreaUploads, data, mime)
		if err != nil {
			return nil, fmt.Errorf("studio: store upload: %w", err)
		}
		item.Payload = stored.URL
		if err := s.uploads.Insert(ctx, item); err != nil {
			_ = s.store.Remove(stored.Key)
			return nil, err
		}
	case errors.Is(err, reference.ErrNotInline):
		if err := s.uploads.Insert(ctx, item); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	s.logger.Info().Int64("upload_id", item.ID).Msg("studio: upload stored")
	return item, nil
}

// Uploads lists uploads newest first.
func (s *Service) Uploads(ctx context.Context, limit int) ([]domain.UploadItem, error) {
	return s.uploads.List(ctx, limit)
}

// ArchiveEntry is one proxy file for archiving.
type ArchiveEntry struct {
	Name    string
	Path    string
	ModTime time.Time
}

// ProxyArchive lists the local files of a parent's proxies. Proxies whose
// artifact is not stored locally are skipped.
func (s *Service) ProxyArchive(ctx context.Context, parentID int64) ([]ArchiveEntry, error) {
	if _, err := s.media.Get(ctx, parentID); err != nil {
		return nil, err
	}
	proxies, err := s.media.ListProxies(ctx, parentID)
	if err != nil {
		return nil, err
	}
	entries := make([]ArchiveEntry, 0, len(proxies))
	for i, p := range proxies {
		path, ok := s.store.Locate(storage.AreaGenerated, p.Locator)
		if !ok {
			s.logger.Warn().Int64("media_id", p.ID).Msg("studio: proxy artifact missing from archive")
			continue
		}
		name := fmt.Sprintf("%02d-%d%s", i+1, p.ID, filepath.Ext(path))
		entries = append(entries, ArchiveEntry{Name: name, Path: path, ModTime: p.CreatedAt})
	}
	return entries, nil
}
