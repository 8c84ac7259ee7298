package studio

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/providers/backend"
)

func TestMultishotSequentialPartialFailure(t *testing.T) {
	adapter := &fakeAdapter{policy: backend.SequentialPolicy()}
	h := newHarness(t, adapter, Options{})
	catalog := h.svc.Catalog()
	adapter.failOn = failAngles(catalog[0].Clause, catalog[4].Clause, catalog[8].Clause)
	src := h.seedSource(t)

	ids, err := h.svc.Multishot(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("Multishot: %v", err)
	}
	if len(ids) != len(catalog)-3 {
		t.Fatalf("ids = %d, want %d", len(ids), len(catalog)-3)
	}
	if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Fatalf("sequential ids out of catalog order: %v", ids)
	}
	if len(adapter.prepared) != 1 {
		t.Fatalf("reference prepared %d times", len(adapter.prepared))
	}

	proxies, _ := h.svc.Proxies(context.Background(), src.ID)
	if len(proxies) != len(ids) {
		t.Fatalf("proxies = %d", len(proxies))
	}
	for i, p := range proxies {
		if !p.IsProxy || p.ParentID == nil || *p.ParentID != src.ID {
			t.Fatalf("proxy lineage = %+v", p)
		}
		if p.ID != ids[i] || p.Camera != src.Camera || p.FocalLength != "40mm" {
			t.Fatalf("proxy %d = %+v", i, p)
		}
		if !strings.Contains(p.Prompt, "A samurai at dusk. Shot on Alexa 35") || strings.Count(p.Prompt, ". Shot on ") != 1 {
			t.Fatalf("proxy prompt = %q", p.Prompt)
		}
	}
	// Second angle in the catalog is the first to succeed.
	if !strings.HasPrefix(proxies[0].Prompt, catalog[1].Clause) {
		t.Fatalf("first proxy prompt = %q", proxies[0].Prompt)
	}

	history, _ := h.svc.History(context.Background(), 0)
	for _, item := range history {
		if item.IsProxy {
			t.Fatalf("history contains proxy %d", item.ID)
		}
	}
}

func TestMultishotConcurrentRespectsCap(t *testing.T) {
	adapter := &fakeAdapter{policy: backend.ConcurrentPolicy(10), delay: 20 * time.Millisecond}
	h := newHarness(t, adapter, Options{})
	catalog := h.svc.Catalog()
	adapter.failOn = failAngles(catalog[2].Clause, catalog[3].Clause)
	src := h.seedSource(t)

	ids, err := h.svc.Multishot(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("Multishot: %v", err)
	}
	if len(ids) != len(catalog)-2 {
		t.Fatalf("ids = %d, want %d", len(ids), len(catalog)-2)
	}
	if adapter.peak > backend.MaxInFlight {
		t.Fatalf("peak in flight = %d", adapter.peak)
	}
	if adapter.peak < 2 {
		t.Fatalf("concurrent policy ran serially (peak %d)", adapter.peak)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
		item, err := h.svc.Get(context.Background(), id)
		if err != nil || item.ParentID == nil || *item.ParentID != src.ID {
			t.Fatalf("proxy %d = %+v, %v", id, item, err)
		}
	}
}

func TestMultishotAllAnglesFail(t *testing.T) {
	adapter := &fakeAdapter{policy: backend.ConcurrentPolicy(3), failOn: func(backend.ImageJob) bool { return true }}
	h := newHarness(t, adapter, Options{})
	src := h.seedSource(t)
	ids, err := h.svc.Multishot(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("Multishot: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids = %v", ids)
	}
	if len(adapter.imageJobs()) != len(h.svc.Catalog()) {
		t.Fatalf("a failure stopped sibling angles")
	}
}

func TestMultishotPacing(t *testing.T) {
	adapter := &fakeAdapter{policy: backend.SequentialPolicy()}
	h := newHarness(t, adapter, Options{FanoutInterval: 5 * time.Millisecond})
	src := h.seedSource(t)
	started := time.Now()
	if _, err := h.svc.Multishot(context.Background(), src.ID); err != nil {
		t.Fatalf("Multishot: %v", err)
	}
	if elapsed := time.Since(started); elapsed < time.Duration(len(h.svc.Catalog())-1)*5*time.Millisecond {
		t.Fatalf("fan-out was not paced: %s", elapsed)
	}
}

func TestMultishotStartFailures(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, &fakeAdapter{policy: backend.SequentialPolicy()}, Options{})
	if _, err := h.svc.Multishot(ctx, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing source err = %v", err)
	}

	src := h.seedSource(t)
	if err := os.Remove(h.store.Path("generated/" + baseName(src.Locator))); err != nil {
		t.Fatalf("remove source file: %v", err)
	}
	_, err := h.svc.Multishot(ctx, src.ID)
	if !errors.Is(err, ErrSourceMissing) || !errors.Is(err, domain.ErrResourceResolution) {
		t.Fatalf("missing art err = %v", err)
	}

	failing := &fakeAdapter{policy: backend.SequentialPolicy(), prepErr: backend.Unavailable("fake", nil, "upload")}
	h = newHarness(t, failing, Options{})
	src = h.seedSource(t)
	_, err = h.svc.Multishot(ctx, src.ID)
	if !errors.Is(err, ErrReferenceUpload) || !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("upload failure err = %v", err)
	}
	if len(failing.imageJobs()) != 0 {
		t.Fatalf("jobs dispatched after failed upload")
	}
}

func TestMultishotRejectsProxySource(t *testing.T) {
	h := newHarness(t, &fakeAdapter{policy: backend.SequentialPolicy()}, Options{})
	src := h.seedSource(t)
	ids, err := h.svc.Multishot(context.Background(), src.ID)
	if err != nil || len(ids) == 0 {
		t.Fatalf("Multishot: %v", err)
	}
	if _, err := h.svc.Multishot(context.Background(), ids[0]); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("proxy source err = %v", err)
	}
}

func TestUpscaleProxies(t *testing.T) {
	adapter := &fakeAdapter{policy: backend.SequentialPolicy()}
	h := newHarness(t, adapter, Options{})
	src := h.seedSource(t)
	proxyIDs, err := h.svc.Multishot(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("Multishot: %v", err)
	}
	before := len(adapter.imageJobs())

	adapter.failOn = func(job backend.ImageJob) bool {
		return job.Resolution == backend.ResolutionFor("16:9") && strings.HasPrefix(job.Prompt, h.svc.Catalog()[1].Clause)
	}
	out, err := h.svc.UpscaleProxies(context.Background(), proxyIDs[:3])
	if err != nil {
		t.Fatalf("UpscaleProxies: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("upscaled = %d, want 2", len(out))
	}
	for _, job := range adapter.imageJobs()[before:] {
		if job.Template != backend.TemplateReference || job.Resolution != backend.ResolutionFor("16:9") {
			t.Fatalf("upscale job = %+v", job)
		}
	}
	for _, id := range out {
		item, _ := h.svc.Get(context.Background(), id)
		if item.IsProxy || item.ParentID != nil {
			t.Fatalf("upscaled item should be top-level: %+v", item)
		}
	}

	if _, err := h.svc.UpscaleProxies(context.Background(), nil); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("empty ids err = %v", err)
	}
	if _, err := h.svc.UpscaleProxies(context.Background(), []int64{proxyIDs[0], 999}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestProxyArchive(t *testing.T) {
	h := newHarness(t, &fakeAdapter{policy: backend.SequentialPolicy()}, Options{})
	src := h.seedSource(t)
	ids, _ := h.svc.Multishot(context.Background(), src.ID)

	entries, err := h.svc.ProxyArchive(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("ProxyArchive: %v", err)
	}
	if len(entries) != len(ids) {
		t.Fatalf("entries = %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name, "01-") || !strings.HasSuffix(entries[0].Name, ".png") {
		t.Fatalf("entry name = %q", entries[0].Name)
	}
	if _, err := os.Stat(entries[0].Path); err != nil {
		t.Fatalf("entry path: %v", err)
	}
	if _, err := h.svc.ProxyArchive(context.Background(), 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing parent err = %v", err)
	}
}

func baseName(locator string) string {
	return locator[strings.LastIndexByte(locator, '/')+1:]
}
