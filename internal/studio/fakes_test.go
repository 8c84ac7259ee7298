package studio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/providers/backend"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// fakeAdapter records jobs and fails those whose prompt matches failOn.
type fakeAdapter struct {
	policy  backend.Policy
	failOn  func(job backend.ImageJob) bool
	delay   time.Duration
	prepErr error

	mu       sync.Mutex
	jobs     []backend.ImageJob
	videos   []backend.VideoJob
	prepared []backend.LocalFile
	inFlight int
	peak     int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Policy() backend.Policy { return f.policy }

func (f *fakeAdapter) PrepareReference(_ context.Context, file backend.LocalFile) (backend.Reference, error) {
	if f.prepErr != nil {
		return backend.Reference{}, f.prepErr
	}
	f.mu.Lock()
	f.prepared = append(f.prepared, file)
	f.mu.Unlock()
	return backend.Reference{Value: "ref:" + file.Name()}, nil
}

func (f *fakeAdapter) GenerateImage(ctx context.Context, job backend.ImageJob) (*backend.Artifact, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, backend.Unavailable("fake", ctx.Err(), "job timed out")
		}
	}
	if f.failOn != nil && f.failOn(job) {
		return nil, backend.Rejected("fake", "simulated failure")
	}
	return &backend.Artifact{Data: pngBytes, MIME: "image/png"}, nil
}

func (f *fakeAdapter) GenerateVideo(_ context.Context, job backend.VideoJob) (*backend.Artifact, error) {
	f.mu.Lock()
	f.videos = append(f.videos, job)
	f.mu.Unlock()
	return &backend.Artifact{URL: "data:video/mp4;base64,AAAAGGZ0eXBtcDQyAAAAAG1wNDJpc29t", MIME: "video/mp4"}, nil
}

func (f *fakeAdapter) imageJobs() []backend.ImageJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.ImageJob(nil), f.jobs...)
}

// memMedia is an in-memory MediaRepository with the store's ordering rules.
type memMedia struct {
	mu        sync.Mutex
	items     map[int64]domain.MediaItem
	next      int64
	insertErr error
}

func newMemMedia() *memMedia { return &memMedia{items: map[int64]domain.MediaItem{}} }

func (m *memMedia) Insert(_ context.Context, item *domain.MediaItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if item.ParentID != nil {
		parent, ok := m.items[*item.ParentID]
		if !ok || parent.IsProxy {
			return fmt.Errorf("%w: bad parent", domain.ErrInvalidRequest)
		}
	}
	m.next++
	item.ID = m.next
	item.CreatedAt = time.Unix(0, m.next)
	m.items[item.ID] = *item
	return nil
}

func (m *memMedia) Get(_ context.Context, id int64) (*domain.MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (m *memMedia) sorted(keep func(domain.MediaItem) bool, desc bool) []domain.MediaItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MediaItem
	for _, item := range m.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memMedia) ListHistory(_ context.Context, _ int) ([]domain.MediaItem, error) {
	return m.sorted(func(i domain.MediaItem) bool { return !i.IsProxy }, true), nil
}

func (m *memMedia) ListProxies(_ context.Context, parentID int64) ([]domain.MediaItem, error) {
	return m.sorted(func(i domain.MediaItem) bool { return i.ParentID != nil && *i.ParentID == parentID }, false), nil
}

func (m *memMedia) Delete(_ context.Context, id int64, mode domain.DeleteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	if mode == domain.DeleteCascade {
		for cid, item := range m.items {
			if item.ParentID != nil && *item.ParentID == id {
				delete(m.items, cid)
			}
		}
	}
	return nil
}

func (m *memMedia) SetFavorite(_ context.Context, id int64, favorite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.IsFavorite = favorite
	m.items[id] = item
	return nil
}

func (m *memMedia) Duplicate(ctx context.Context, id int64) (*domain.MediaItem, error) {
	src, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.IsProxy {
		return nil, fmt.Errorf("%w: proxies cannot be duplicated", domain.ErrInvalidRequest)
	}
	dup := domain.MediaItem{
		Kind:        src.Kind,
		Prompt:      src.Prompt,
		Locator:     src.Locator,
		Camera:      src.Camera,
		Lens:        src.Lens,
		FocalLength: src.FocalLength,
	}
	if err := m.Insert(ctx, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

type memUploads struct {
	mu    sync.Mutex
	items []domain.UploadItem
}

func (u *memUploads) Insert(_ context.Context, item *domain.UploadItem) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	item.ID = int64(len(u.items) + 1)
	u.items = append(u.items, *item)
	return nil
}

func (u *memUploads) List(_ context.Context, _ int) ([]domain.UploadItem, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]domain.UploadItem, 0, len(u.items))
	for i := len(u.items) - 1; i >= 0; i-- {
		out = append(out, u.items[i])
	}
	return out, nil
}

func failAngles(keys ...string) func(backend.ImageJob) bool {
	return func(job backend.ImageJob) bool {
		for _, k := range keys {
			if strings.HasPrefix(job.Prompt, k) {
				return true
			}
		}
		return false
	}
}
