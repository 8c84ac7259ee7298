// Package studio is the job orchestrator: it turns generation requests into
// backend jobs and persists the resulting artifacts with their lineage.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cinemastudio/internal/composer"
	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
	"cinemastudio/internal/storage"
)

// DefaultImageStrength is the reference weight used when a request leaves
// it unset.
const DefaultImageStrength = 0.75

var (
	// ErrSourceMissing reports that a multishot source has no local or
	// remote copy that could be read.
	ErrSourceMissing = errors.New("no local/remote copy of source art exists")
	// ErrReferenceUpload reports that the backend refused the source image.
	ErrReferenceUpload = errors.New("reference upload to backend failed")
)

// Resolver materializes a caller-supplied reference into a local file.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (backend.LocalFile, error)
}

// Options are the tunables of a Service.
type Options struct {
	// JobTimeout bounds each backend call.
	JobTimeout time.Duration
	// FanoutInterval paces job starts within one fan-out. Zero disables
	// pacing.
	FanoutInterval time.Duration
	// ProxyResolution is the draft size of multishot proxies.
	ProxyResolution backend.Resolution
	// FetchTimeout and MaxArtifactBytes bound artifact downloads.
	FetchTimeout     time.Duration
	MaxArtifactBytes int64
}

// Deps are the collaborators of a Service.
type Deps struct {
	Adapter    backend.Adapter
	Media      domain.MediaRepository
	Uploads    domain.UploadRepository
	Resolver   Resolver
	Store      *storage.FileStore
	Catalog    []composer.Angle
	HTTPClient *http.Client
	Logger     *infra.Logger
	Observer   infra.Observer
}

// Service orchestrates single-shot generation, multishot fan-out and the
// gallery operations.
type Service struct {
	adapter  backend.Adapter
	media    domain.MediaRepository
	uploads  domain.UploadRepository
	resolver Resolver
	store    *storage.FileStore
	catalog  []composer.Angle
	client   *http.Client
	logger   *infra.Logger
	observer infra.Observer
	opts     Options
}

// NewService wires a Service. Adapter, repositories, resolver and store are
// required.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Adapter == nil:
		return nil, errors.New("studio: adapter is required")
	case deps.Media == nil || deps.Uploads == nil:
		return nil, errors.New("studio: repositories are required")
	case deps.Resolver == nil:
		return nil, errors.New("studio: resolver is required")
	case deps.Store == nil:
		return nil, errors.New("studio: file store is required")
	}
	if len(deps.Catalog) == 0 {
		deps.Catalog = composer.DefaultCatalog()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	if deps.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		deps.Logger = &l
	}
	if deps.Observer == nil {
		deps.Observer = infra.NopObserver{}
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}
	if opts.ProxyResolution == (backend.Resolution{}) {
		opts.ProxyResolution = backend.Resolution{Width: 1024, Height: 576}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.MaxArtifactBytes <= 0 {
		opts.MaxArtifactBytes = 256 << 20
	}
	return &Service{
		adapter:  deps.Adapter,
		media:    deps.Media,
		uploads:  deps.Uploads,
		resolver: deps.Resolver,
		store:    deps.Store,
		catalog:  deps.Catalog,
		client:   deps.HTTPClient,
		logger:   deps.Logger,
		observer: deps.Observer,
		opts:     opts,
	}, nil
}

// Backend returns the adapter name.
func (s *Service) Backend() string { return s.adapter.Name() }

// Policy returns the adapter's dispatch policy.
func (s *Service) Policy() backend.Policy { return s.adapter.Policy() }

// Catalog returns the multishot angles in dispatch order.
func (s *Service) Catalog() []composer.Angle {
	out := make([]composer.Angle, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// ImageRequest is a single image generation.
type ImageRequest struct {
	Prompt          string
	Camera          string
	Lens            string
	FocalLength     string
	AspectRatio     string
	ReferenceImages []string
	// ImageStrength is the reference weight in [0, 1]. Nil selects
	// DefaultImageStrength.
	ImageStrength   *float64
}

func (r ImageRequest) shot() composer.Shot {
	return composer.Shot{Prompt: r.Prompt, Camera: r.Camera, Lens: r.Lens, FocalLength: r.FocalLength}
}

func (r ImageRequest) strength() float64 {
	if r.ImageStrength == nil {
		return DefaultImageStrength
	}
	return *r.ImageStrength
}

func (r *ImageRequest) normalize() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	if s := r.strength(); s < 0 || s > 1 {
		return fmt.Errorf("%w: imageStrength must be within [0, 1]", domain.ErrInvalidRequest)
	}
	refs := r.ReferenceImages[:0:0]
	for _, ref := range r.ReferenceImages {
		if strings.TrimSpace(ref) != "" {
			refs = append(refs, ref)
		}
	}
	r.ReferenceImages = refs
	return nil
}

// GenerateImage runs one image job. The template is chosen from the number
// of references before any network call. A reference that cannot be
// resolved downgrades the job to text-to-image.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*domain.MediaItem, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	template := composer.SelectTemplate(len(req.ReferenceImages))
	log := s.logger.With().Str("job", "image").Str("backend", s.adapter.Name()).Logger()

	job := backend.ImageJob{
		Template:    template,
		Prompt:      composer.Compose(req.shot()),
		AspectRatio: req.AspectRatio,
		Resolution:  backend.ResolutionFor(req.AspectRatio),
		Strength:    req.strength(),
	}
	if template == backend.TemplateReference {
		file, err := s.resolver.Resolve(ctx, req.ReferenceImages[0])
		if err != nil {
			log.Warn().Err(err).Msg("studio: reference unresolved, falling back to text-to-image")
			job.Template = backend.TemplateTextToImage
		} else {
			ref, err := s.adapter.PrepareReference(ctx, file)
			if err != nil {
				return nil, err
			}
			job.Reference = &ref
		}
	}
	job.Seed = backend.DeterministicSeed(job.Prompt, job.AspectRatio, job.Template, time.Now().UnixNano())

	art, err := s.runImage(ctx, "image", job)
	if err != nil {
		log.Error().Err(err).Str("template", string(job.Template)).Msg("studio: image generation failed")
		return nil, err
	}
	item := &domain.MediaItem{
		Kind:        domain.MediaKindImage,
		Prompt:      job.Prompt,
		Camera:      req.Camera,
		Lens:        req.Lens,
		FocalLength: req.FocalLength,
	}
	if err := s.persist(ctx, art, item); err != nil {
		return nil, err
	}
	log.Info().Int64("media_id", item.ID).Str("template", string(job.Template)).Msg("studio: image generated")
	return item, nil
}

// VideoRequest animates an existing image.
type VideoRequest struct {
	ImageURL    string
	Prompt      string
	Camera      string
	Lens        string
	FocalLength string
	Zoom        float64
	Horizontal  float64
	Vertical    float64
}

// GenerateVideo runs one image-to-video job. The source image is mandatory.
func (s *Service) GenerateVideo(ctx context.Context, req VideoRequest) (*domain.MediaItem, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("%w: imageUrl is required", domain.ErrInvalidRequest)
	}
	motion := backend.CameraMotion{Horizontal: req.Horizontal, Vertical: req.Vertical, Zoom: req.Zoom}
	for _, v := range []float64{motion.Horizontal, motion.Vertical, motion.Zoom} {
		if v < -10 || v > 10 {
			return nil, fmt.Errorf("%w: camera motion values must be within [-10, 10]", domain.ErrInvalidRequest)
		}
	}
	log := s.logger.With().Str("job", "video").Str("backend", s.adapter.Name()).Logger()

	file, err := s.resolver.Resolve(ctx, req.ImageURL)
	if err != nil {
		return nil, err
	}
	ref, err := s.adapter.PrepareReference(ctx, file)
	if err != nil {
		return nil, err
	}
	shot := composer.Shot{Prompt: req.Prompt, Camera: req.Camera, Lens: req.Lens, FocalLength: req.FocalLength}
	if strings.TrimSpace(shot.Prompt) == "" {
		shot.Prompt = "The scene comes to life"
	}
	job := backend.VideoJob{
		Prompt:      composer.ComposeVideo(shot, motion),
		Reference:   ref,
		AspectRatio: "16:9",
		Motion:      motion,
		Duration:    "5",
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	started := time.Now()
	art, err := s.adapter.GenerateVideo(jobCtx, job)
	cancel()
	s.observer.RecordJob("video", s.adapter.Name(), time.Since(started), err)
	if err != nil {
		log.Error().Err(err).Msg("studio: video generation failed")
		return nil, err
	}
	item := &domain.MediaItem{
		Kind:        domain.MediaKindVideo,
		Prompt:      job.Prompt,
		Camera:      req.Camera,
		Lens:        req.Lens,
		FocalLength: req.FocalLength,
	}
	if err := s.persist(ctx, art, item); err != nil {
		return nil, err
	}
	log.Info().Int64("media_id", item.ID).Msg("studio: video generated")
	return item, nil
}

// runImage executes one image job under the per-job timeout and records it.
func (s *Service) runImage(ctx context.Context, kind string, job backend.ImageJob) (*backend.Artifact, error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()
	started := time.Now()
	art, err := s.adapter.GenerateImage(jobCtx, job)
	s.observer.RecordJob(kind, s.adapter.Name(), time.Since(started), err)
	return art, err
}
