package studio

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cinemastudio/internal/composer"
	"cinemastudio/internal/domain"
	"cinemastudio/internal/providers/backend"
)

// Multishot fans one source item out into an angle variant per catalog
// entry. Only failures that prevent the fan-out from starting are returned;
// a failed angle is logged and left out of the result.
func (s *Service) Multishot(ctx context.Context, sourceID int64) ([]int64, error) {
	src, err := s.media.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.IsProxy {
		return nil, fmt.Errorf("%w: item %d is a proxy and cannot be a multishot source", domain.ErrInvalidRequest, sourceID)
	}
	if src.Kind != domain.MediaKindImage {
		return nil, fmt.Errorf("%w: item %d is not an image", domain.ErrInvalidRequest, sourceID)
	}
	log := s.logger.With().Str("job", "multishot").Str("backend", s.adapter.Name()).Int64("media_id", sourceID).Logger()

	file, err := s.resolver.Resolve(ctx, src.Locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceMissing, err)
	}
	ref, err := s.adapter.PrepareReference(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReferenceUpload, err)
	}

	shot := composer.Shot{Prompt: src.Prompt, Camera: src.Camera, Lens: src.Lens, FocalLength: src.FocalLength}
	parentID := src.ID
	started := time.Now()
	ids := s.dispatch(ctx, len(s.catalog), func(ctx context.Context, i int) (int64, error) {
		angle := s.catalog[i]
		job := backend.ImageJob{
			Template:    backend.TemplateReference,
			Prompt:      composer.ComposeAngle(src.Prompt, angle, shot),
			AspectRatio: "16:9",
			Resolution:  s.opts.ProxyResolution,
			Reference:   &ref,
			Strength:    DefaultImageStrength,
			Seed:        backend.DeterministicSeed(parentID, angle.Key),
		}
		art, err := s.runImage(ctx, "multishot", job)
		if err != nil {
			return 0, err
		}
		item := &domain.MediaItem{
			Kind:        domain.MediaKindImage,
			Prompt:      job.Prompt,
			Camera:      src.Camera,
			Lens:        src.Lens,
			FocalLength: src.FocalLength,
			IsProxy:     true,
			ParentID:    &parentID,
		}
		if err := s.persist(ctx, art, item); err != nil {
			return 0, err
		}
		return item.ID, nil
	}, func(i int, err error) {
		log.Warn().Err(err).Str("angle", s.catalog[i].Key).Msg("studio: angle failed")
	})
	s.observer.RecordFanout(len(s.catalog), len(ids), time.Since(started))
	log.Info().Int("angles", len(s.catalog)).Int("succeeded", len(ids)).Msg("studio: multishot finished")
	return ids, nil
}

// UpscaleProxies regenerates each proxy at full resolution through the
// reference pipeline and saves the results as new top-level items. Unknown
// ids fail the whole call before any job starts.
func (s *Service) UpscaleProxies(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: proxyIds is required", domain.ErrInvalidRequest)
	}
	items := make([]*domain.MediaItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.media.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("proxy %d: %w", id, err)
		}
		items = append(items, item)
	}
	log := s.logger.With().Str("job", "upscale").Str("backend", s.adapter.Name()).Logger()

	started := time.Now()
	out := s.dispatch(ctx, len(items), func(ctx context.Context, i int) (int64, error) {
		proxy := items[i]
		file, err := s.resolver.Resolve(ctx, proxy.Locator)
		if err != nil {
			return 0, err
		}
		ref, err := s.adapter.PrepareReference(ctx, file)
		if err != nil {
			return 0, err
		}
		job := backend.ImageJob{
			Template:    backend.TemplateReference,
			Prompt:      proxy.Prompt,
			AspectRatio: "16:9",
			Resolution:  backend.ResolutionFor("16:9"),
			Reference:   &ref,
			Strength:    DefaultImageStrength,
			Seed:        backend.DeterministicSeed(proxy.ID, "upscale"),
		}
		art, err := s.runImage(ctx, "upscale", job)
		if err != nil {
			return 0, err
		}
		item := &domain.MediaItem{
			Kind:        domain.MediaKindImage,
			Prompt:      proxy.Prompt,
			Camera:      proxy.Camera,
			Lens:        proxy.Lens,
			FocalLength: proxy.FocalLength,
		}
		if err := s.persist(ctx, art, item); err != nil {
			return 0, err
		}
		return item.ID, nil
	}, func(i int, err error) {
		log.Warn().Err(err).Int64("media_id", items[i].ID).Msg("studio: upscale failed")
	})
	s.observer.RecordFanout(len(items), len(out), time.Since(started))
	return out, nil
}

type task func(ctx context.Context, i int) (int64, error)

// dispatch runs n tasks under the adapter's policy and returns the ids of
// the successful ones: in index order when sequential, in completion order
// when concurrent. Failures go to onErr and never stop siblings.
func (s *Service) dispatch(ctx context.Context, n int, run task, onErr func(int, error)) []int64 {
	var limiter *rate.Limiter
	if s.opts.FanoutInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.opts.FanoutInterval), 1)
	}
	attempt := func(i int) (int64, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return 0, err
			}
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return run(ctx, i)
	}

	policy := s.adapter.Policy()
	if policy.Mode != backend.Concurrent || policy.Limit() <= 1 {
		ids := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			id, err := attempt(i)
			if err != nil {
				onErr(i, err)
				continue
			}
			ids = append(ids, id)
		}
		return ids
	}

	results := make(chan int64, n)
	var g errgroup.Group
	g.SetLimit(policy.Limit())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := attempt(i)
			if err != nil {
				onErr(i, err)
				return nil
			}
			results <- id
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	ids := make([]int64, 0, n)
	for id := range results {
		ids = append(ids, id)
	}
	return ids
}
