package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BACKEND", "")
	t.Setenv("FAL_KEY", "test-key")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Backend != BackendHosted {
		t.Fatalf("Backend mismatch: got %q", cfg.Backend)
	}
	if cfg.DatabaseDriver != DriverSQLite {
		t.Fatalf("DatabaseDriver mismatch: got %q", cfg.DatabaseDriver)
	}
	if cfg.StorageBaseURL != "http://localhost:8000" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.JobTimeout != 300*time.Second {
		t.Fatalf("JobTimeout mismatch: got %s", cfg.JobTimeout)
	}
	if cfg.HostedMaxInFlight != MaxInFlightCap {
		t.Fatalf("HostedMaxInFlight mismatch: got %d", cfg.HostedMaxInFlight)
	}
}

func TestLoadConfigRequiresFalKeyForHosted(t *testing.T) {
	t.Setenv("BACKEND", "hosted")
	t.Setenv("FAL_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when FAL_KEY is missing")
	}
}

func TestLoadConfigClampsInFlight(t *testing.T) {
	t.Setenv("BACKEND", "hosted")
	t.Setenv("FAL_KEY", "test-key")
	t.Setenv("HOSTED_MAX_IN_FLIGHT", "12")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.HostedMaxInFlight != MaxInFlightCap {
		t.Fatalf("HostedMaxInFlight = %d, want %d", cfg.HostedMaxInFlight, MaxInFlightCap)
	}
}

func TestLoadConfigNodeGraph(t *testing.T) {
	t.Setenv("BACKEND", "NodeGraph")
	t.Setenv("FAL_KEY", "")
	t.Setenv("NODEGRAPH_HOST", "abc-8188.proxy.runpod.net")
	t.Setenv("NODEGRAPH_SESSIONS", "0")
	t.Setenv("STORAGE_PATH", "/srv/media/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Backend != BackendNodeGraph {
		t.Fatalf("Backend mismatch: got %q", cfg.Backend)
	}
	if cfg.NodeGraphSessions != 1 {
		t.Fatalf("NodeGraphSessions = %d, want 1", cfg.NodeGraphSessions)
	}
	if cfg.GeneratedDir() != "/srv/media/generated" || cfg.UploadsDir() != "/srv/media/uploads" {
		t.Fatalf("unexpected dirs: %q %q", cfg.GeneratedDir(), cfg.UploadsDir())
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("BACKEND", "hosted")
	t.Setenv("FAL_KEY", "test-key")
	t.Setenv("DATABASE_DRIVER", "mysql")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
