// Package reference materializes caller-supplied reference images into
// local files that backend adapters can read.
package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
	"cinemastudio/internal/storage"
)

// Options configures a Resolver.
type Options struct {
	Store      *storage.FileStore
	HTTPClient *http.Client
	Logger     *infra.Logger
	// FetchTimeout bounds each network fetch.
	FetchTimeout time.Duration
	MaxBytes     int64
	CacheSize    int
}

// Resolver turns a locator (inline payload, file name, local URL or remote
// URL) into a file on local disk.
type Resolver struct {
	store    *storage.FileStore
	client   *http.Client
	logger   *infra.Logger
	timeout  time.Duration
	maxBytes int64
	remote   *lru.Cache[string, string]
	fetches  singleflight.Group
}

// NewResolver builds a resolver backed by store.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, errors.New("reference: store is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		opts.Logger = &l
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 32 << 20
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("reference: cache: %w", err)
	}
	return &Resolver{
		store:    opts.Store,
		client:   opts.HTTPClient,
		logger:   opts.Logger,
		timeout:  opts.FetchTimeout,
		maxBytes: opts.MaxBytes,
		remote:   cache,
	}, nil
}

// Resolve tries, in order: inline decode, local lookup by base name in
// generated/ then uploads/, and a network fetch cached on disk. Exhausting
// every source yields domain.ErrResourceResolution.
func (r *Resolver) Resolve(ctx context.Context, raw string) (backend.LocalFile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return backend.LocalFile{}, fmt.Errorf("%w: empty locator", domain.ErrResourceResolution)
	}

	data, mime, err := DecodeInline(raw)
	switch {
	case err == nil:
		return r.materializeInline(ctx, raw, data, mime)
	case !errors.Is(err, ErrNotInline):
		return backend.LocalFile{}, fmt.Errorf("%w: %v", domain.ErrResourceResolution, err)
	}

	if file, ok := r.lookupLocal(raw); ok {
		return file, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return backend.LocalFile{}, fmt.Errorf("%w: %s is not stored locally", domain.ErrResourceResolution, raw)
	}
	return r.fetch(ctx, raw)
}

func (r *Resolver) materializeInline(ctx context.Context, raw string, data []byte, mime string) (backend.LocalFile, error) {
	sum := sha256.Sum256(data)
	key := string(storage.AreaUploads) + "/inline-" + hex.EncodeToString(sum[:12]) + extensionFor(data)
	if path := r.store.Path(key); fileExists(path) {
		return backend.LocalFile{Path: path, MIME: mime, Source: sourceLabel(raw)}, nil
	}
	cleanKey, err := r.store.Write(ctx, key, data)
	if err != nil {
		return backend.LocalFile{}, fmt.Errorf("%w: store inline payload: %v", domain.ErrResourceResolution, err)
	}
	return backend.LocalFile{Path: r.store.Path(cleanKey), MIME: mime, Source: sourceLabel(raw)}, nil
}

// lookupLocal matches on the final path element so that servable URLs of
// our own artifacts resolve without a network round trip.
func (r *Resolver) lookupLocal(raw string) (backend.LocalFile, bool) {
	name := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		name = u.Path
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	for _, area := range []storage.Area{storage.AreaGenerated, storage.AreaUploads} {
		if p, ok := r.store.Locate(area, base); ok {
			return backend.LocalFile{Path: p, MIME: detectFile(p), Source: raw}, true
		}
	}
	return backend.LocalFile{}, false
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (backend.LocalFile, error) {
	if p, ok := r.remote.Get(rawURL); ok && fileExists(p) {
		return backend.LocalFile{Path: p, MIME: detectFile(p), Source: rawURL}, nil
	}
	key := remoteKey(rawURL)
	if p, ok := r.cachedRemote(key); ok {
		r.remote.Add(rawURL, p)
		return backend.LocalFile{Path: p, MIME: detectFile(p), Source: rawURL}, nil
	}

	v, err, _ := r.fetches.Do(rawURL, func() (any, error) {
		return r.download(ctx, rawURL, key)
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("url", rawURL).Msg("reference: fetch failed")
		return backend.LocalFile{}, fmt.Errorf("%w: %v", domain.ErrResourceResolution, err)
	}
	file := v.(backend.LocalFile)
	r.remote.Add(rawURL, file.Path)
	return file, nil
}

func (r *Resolver) download(ctx context.Context, rawURL, key string) (backend.LocalFile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backend.LocalFile{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return backend.LocalFile{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return backend.LocalFile{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := backend.ReadAllWithLimit(resp.Body, r.maxBytes)
	if err != nil {
		return backend.LocalFile{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(data) == 0 {
		return backend.LocalFile{}, fmt.Errorf("fetch %s: empty body", rawURL)
	}
	mime, ok := mediaType(data)
	if !ok {
		return backend.LocalFile{}, fmt.Errorf("fetch %s: %s is not an image or video", rawURL, mime)
	}
	cleanKey, err := r.store.Write(ctx, string(storage.AreaUploads)+"/"+key+extensionFor(data), data)
	if err != nil {
		return backend.LocalFile{}, err
	}
	r.logger.Debug().Str("url", rawURL).Int("bytes", len(data)).Msg("reference: fetched remote copy")
	return backend.LocalFile{Path: r.store.Path(cleanKey), MIME: mime, Source: rawURL}, nil
}

// remoteKey is the disk cache name of a URL without its extension.
func remoteKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "remote-" + hex.EncodeToString(sum[:12])
}

// cachedRemote finds a copy fetched by an earlier process.
func (r *Resolver) cachedRemote(key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(r.store.Dir(storage.AreaUploads), key+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func extensionFor(data []byte) string {
	if ext := mimetype.Detect(data).Extension(); ext != "" {
		return ext
	}
	return ".bin"
}

func detectFile(p string) string {
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return ""
	}
	return mt.String()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func sourceLabel(raw string) string {
	if len(raw) > 48 {
		return raw[:48] + "..."
	}
	return raw
}
