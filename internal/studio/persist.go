package studio

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/providers/backend"
	"cinemastudio/internal/reference"
	"cinemastudio/internal/storage"
)

// persist writes the artifact into generated/ and inserts item pointing at
// it. The file is committed before the row; a failed insert removes it.
func (s *Service) persist(ctx context.Context, art *backend.Artifact, item *domain.MediaItem) error {
	if art == nil {
		return backend.Rejected(s.adapter.Name(), "backend returned no artifact")
	}
	data, mime, err := s.artifactBytes(ctx, art)
	if err != nil {
		return err
	}
	stored, err := s.store.Save(ctx, storage.AreaGenerated, data, mime)
	if err != nil {
		return fmt.Errorf("studio: store artifact: %w", err)
	}
	item.Locator = stored.URL
	if err := s.media.Insert(ctx, item); err != nil {
		if rmErr := s.store.Remove(stored.Key); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("key", stored.Key).Msg("studio: remove orphaned artifact")
		}
		return fmt.Errorf("studio: record artifact: %w", err)
	}
	return nil
}

// artifactBytes returns the artifact payload, decoding inline results and
// downloading remote ones.
func (s *Service) artifactBytes(ctx context.Context, art *backend.Artifact) ([]byte, string, error) {
	if len(art.Data) > 0 {
		return art.Data, art.MIME, nil
	}
	raw := strings.TrimSpace(art.URL)
	if raw == "" {
		return nil, "", backend.Rejected(s.adapter.Name(), "backend returned an empty artifact")
	}
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		data, mime, err := reference.DecodeInline(raw)
		if err != nil {
			return nil, "", backend.Rejected(s.adapter.Name(), "undecodable inline artifact: %v", err)
		}
		return data, mime, nil
	}
	return s.download(ctx, raw)
}

func (s *Service) download(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", backend.Rejected(s.adapter.Name(), "invalid artifact url %q", url)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", backend.Unavailable(s.adapter.Name(), err, "download artifact")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", backend.Rejected(s.adapter.Name(), "download artifact: status %d", resp.StatusCode)
	}
	data, err := backend.ReadAllWithLimit(resp.Body, s.opts.MaxArtifactBytes)
	if err != nil {
		return nil, "", backend.Unavailable(s.adapter.Name(), err, "read artifact")
	}
	if len(data) == 0 {
		return nil, "", backend.Rejected(s.adapter.Name(), "downloaded artifact is empty")
	}
	return data, resp.Header.Get("Content-Type"), nil
}
