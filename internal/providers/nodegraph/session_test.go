package nodegraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/providers/backend"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// fakeServer emulates the node-graph REST and websocket surface.
type fakeServer struct {
	mu       sync.Mutex
	uploads  []string
	graphs   []Graph
	clients  map[string]*websocket.Conn
	finalize func(conn *websocket.Conn, promptID string)
	noOutput bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{clients: map[string]*websocket.Conn{}}
	fs.finalize = func(conn *websocket.Conn, promptID string) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"executing","data":{"node":"3","prompt_id":"`+promptID+`"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"executing","data":{"node":null,"prompt_id":"`+promptID+`"}}`))
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.clients[r.URL.Query().Get("clientId")] = conn
		fs.mu.Unlock()
	})
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		io.Copy(io.Discard, file)
		if r.FormValue("overwrite") != "true" || r.FormValue("type") != "input" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.uploads = append(fs.uploads, header.Filename)
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"name": header.Filename, "subfolder": "", "type": "input"})
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt   Graph  `json:"prompt"`
			ClientID string `json:"client_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.graphs = append(fs.graphs, body.Prompt)
		fs.mu.Unlock()
		conn := fs.client(body.ClientID)
		if conn == nil {
			http.Error(w, "no event channel for client", http.StatusBadRequest)
			return
		}
		promptID := "p-" + body.ClientID
		json.NewEncoder(w).Encode(map[string]any{"prompt_id": promptID, "number": 1, "node_errors": map[string]any{}})
		go fs.finalize(conn, promptID)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		promptID := strings.TrimPrefix(r.URL.Path, "/history/")
		outputs := map[string]any{"9": map[string]any{"images": []map[string]string{{"filename": "out_0001.png", "subfolder": "", "type": "output"}}}}
		if fs.noOutput {
			outputs = map[string]any{"9": map[string]any{"text": []string{"x"}}}
		}
		json.NewEncoder(w).Encode(map[string]any{promptID: map[string]any{"outputs": outputs}})
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filename") != "out_0001.png" || r.URL.Query().Get("type") != "output" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

// client waits briefly for the event channel: the handshake completes on
// the dialer's side before the server handler registers the connection.
func (fs *fakeServer) client(id string) *websocket.Conn {
	deadline := time.Now().Add(time.Second)
	for {
		fs.mu.Lock()
		conn := fs.clients[id]
		fs.mu.Unlock()
		if conn != nil || time.Now().After(deadline) {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (fs *fakeServer) uploadCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.uploads)
}

func writeReference(t *testing.T) backend.LocalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.png")
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	return backend.LocalFile{Path: path, MIME: "image/png"}
}

func TestSessionGenerateImageRoundTrip(t *testing.T) {
	fs, srv := newFakeServer(t)
	s, err := NewSession(Options{Host: srv.URL})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Policy().Mode != backend.Sequential {
		t.Fatalf("session policy should be sequential")
	}

	ref, err := s.PrepareReference(context.Background(), writeReference(t))
	if err != nil {
		t.Fatalf("PrepareReference: %v", err)
	}
	if !strings.HasPrefix(ref.Value, "ref-") || !strings.HasSuffix(ref.Value, ".png") {
		t.Fatalf("reference name = %q", ref.Value)
	}
	// Second prepare is served from the upload cache.
	if _, err := s.PrepareReference(context.Background(), writeReference(t)); err != nil {
		t.Fatalf("PrepareReference again: %v", err)
	}
	if n := fs.uploadCount(); n != 1 {
		t.Fatalf("uploads = %d, want 1", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	art, err := s.GenerateImage(ctx, backend.ImageJob{
		Template:   backend.TemplateReference,
		Prompt:     "the same character, low angle",
		Resolution: backend.ResolutionFor("21:9"),
		Reference:  &ref,
		Seed:       99,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(art.Data) != string(pngBytes) || art.MIME != "image/png" {
		t.Fatalf("artifact = %d bytes %q", len(art.Data), art.MIME)
	}

	fs.mu.Lock()
	graphs := fs.graphs
	fs.mu.Unlock()
	if len(graphs) != 1 {
		t.Fatalf("graphs = %d", len(graphs))
	}
	g := graphs[0]
	if g["12"].Inputs["image"] != ref.Value {
		t.Fatalf("reference not substituted: %v", g["12"].Inputs["image"])
	}
	if g["5"].Inputs["width"] != float64(1680) || g["5"].Inputs["height"] != float64(720) {
		t.Fatalf("dimensions = %v x %v", g["5"].Inputs["width"], g["5"].Inputs["height"])
	}
	if g["3"].Inputs["seed"] != float64(99) {
		t.Fatalf("seed = %v", g["3"].Inputs["seed"])
	}
}

func TestSessionExecutionErrorIsRejected(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.finalize = func(conn *websocket.Conn, promptID string) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"execution_error","data":{"prompt_id":"`+promptID+`","exception_message":"boom"}}`))
	}
	s, _ := NewSession(Options{Host: srv.URL})
	_, err := s.GenerateImage(context.Background(), backend.ImageJob{Template: backend.TemplateTextToImage, Prompt: "x", Resolution: backend.ResolutionFor("16:9")})
	if !errors.Is(err, domain.ErrBackendRejected) {
		t.Fatalf("err = %v, want rejected", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want server message", err)
	}
}

func TestSessionNoOutputIsRejected(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.noOutput = true
	s, _ := NewSession(Options{Host: srv.URL})
	_, err := s.GenerateImage(context.Background(), backend.ImageJob{Template: backend.TemplateTextToImage, Prompt: "x"})
	if !errors.Is(err, domain.ErrBackendRejected) || !strings.Contains(err.Error(), "no output") {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionTimeoutIsUnavailable(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.finalize = func(*websocket.Conn, string) {}
	s, _ := NewSession(Options{Host: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.GenerateImage(ctx, backend.ImageJob{Template: backend.TemplateTextToImage, Prompt: "x"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline", err)
	}
}

func TestSessionUnreachable(t *testing.T) {
	s, _ := NewSession(Options{Host: "127.0.0.1:1"})
	_, err := s.GenerateImage(context.Background(), backend.ImageJob{Template: backend.TemplateTextToImage, Prompt: "x"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestSessionPrepareReferenceUnreadableFile(t *testing.T) {
	s, _ := NewSession(Options{Host: "127.0.0.1:8188"})
	missing := filepath.Join(t.TempDir(), "gone.png")
	_, err := s.PrepareReference(context.Background(), backend.LocalFile{Path: missing})
	if !errors.Is(err, domain.ErrBackendRejected) || backend.BackendName(err) != "nodegraph" {
		t.Fatalf("err = %v, want nodegraph rejection", err)
	}
}

func TestSessionVideoUnsupported(t *testing.T) {
	s, _ := NewSession(Options{Host: "127.0.0.1:8188"})
	_, err := s.GenerateVideo(context.Background(), backend.VideoJob{})
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestPoolPolicyBySessionCount(t *testing.T) {
	cases := []struct {
		sessions int
		want     string
	}{
		{1, "sequential"},
		{2, "concurrent(2)"},
		{5, "concurrent(3)"},
	}
	for _, tc := range cases {
		p, err := NewPool(PoolOptions{Options: Options{Host: "127.0.0.1:8188"}, Sessions: tc.sessions})
		if err != nil {
			t.Fatalf("NewPool(%d): %v", tc.sessions, err)
		}
		if got := p.Policy().String(); got != tc.want {
			t.Fatalf("sessions=%d policy = %s, want %s", tc.sessions, got, tc.want)
		}
	}
}

func TestPoolSpreadsSessionsAcrossHosts(t *testing.T) {
	fsA, srvA := newFakeServer(t)
	fsB, srvB := newFakeServer(t)
	p, err := NewPool(PoolOptions{Hosts: []string{srvA.URL, srvB.URL}, Sessions: 4})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if p.Size() != 4 {
		t.Fatalf("size = %d", p.Size())
	}
	if pol := p.Policy(); pol.Mode != backend.Concurrent || pol.Limit() != backend.MaxInFlight {
		t.Fatalf("policy = %s", pol)
	}

	ref, err := p.PrepareReference(context.Background(), writeReference(t))
	if err != nil {
		t.Fatalf("PrepareReference: %v", err)
	}
	if fsA.uploadCount() != 1 || fsB.uploadCount() != 1 {
		t.Fatalf("uploads a=%d b=%d, want one per host", fsA.uploadCount(), fsB.uploadCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.GenerateImage(ctx, backend.ImageJob{Template: backend.TemplateReference, Prompt: "x", Reference: &ref})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GenerateImage: %v", err)
		}
	}
	fsA.mu.Lock()
	fsB.mu.Lock()
	defer fsA.mu.Unlock()
	defer fsB.mu.Unlock()
	if len(fsA.graphs)+len(fsB.graphs) != 4 {
		t.Fatalf("graphs a=%d b=%d", len(fsA.graphs), len(fsB.graphs))
	}
}

func TestNewPoolRequiresHost(t *testing.T) {
	if _, err := NewPool(PoolOptions{Options: Options{Host: " , "}}); err == nil {
		t.Fatalf("expected error")
	}
}
