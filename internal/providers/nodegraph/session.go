// Package nodegraph implements the adapter for self-hosted node-graph
// servers: jobs are API-format graphs enqueued over REST and awaited on a
// websocket event channel.
package nodegraph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
)

const name = "nodegraph"

// Options configures one node-graph session.
type Options struct {
	Host             string
	HTTPClient       *http.Client
	Dialer           *websocket.Dialer
	Logger           *infra.Logger
	Templates        *TemplateSet
	UploadTTL        time.Duration
	MaxResponseBytes int64
}

func (o Options) withDefaults() (Options, error) {
	out := o
	if strings.TrimSpace(out.Host) == "" {
		return out, fmt.Errorf("nodegraph: host is required")
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if out.Dialer == nil {
		out.Dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	if out.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		out.Logger = &l
	}
	if out.Templates == nil {
		set, err := LoadTemplates("")
		if err != nil {
			return out, err
		}
		out.Templates = set
	}
	if out.UploadTTL <= 0 {
		out.UploadTTL = 30 * time.Minute
	}
	if out.MaxResponseBytes <= 0 {
		out.MaxResponseBytes = 64 << 20
	}
	return out, nil
}

// Session is one client identity on a node-graph server. The server streams
// events per client id, so a session runs one job at a time.
type Session struct {
	endpoint   Endpoint
	clientID   string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *infra.Logger
	templates  *TemplateSet
	uploads    *cache.Cache
	maxBytes   int64

	mu sync.Mutex
}

// NewSession constructs a session with a fresh numeric client id.
func NewSession(opts Options) (*Session, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Session{
		endpoint:   ParseEndpoint(opts.Host),
		clientID:   strconv.FormatUint(rand.Uint64(), 10),
		httpClient: opts.HTTPClient,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
		templates:  opts.Templates,
		uploads:    cache.New(opts.UploadTTL, 2*opts.UploadTTL),
		maxBytes:   opts.MaxResponseBytes,
	}, nil
}

// Name identifies the adapter in logs and errors.
func (s *Session) Name() string { return name }

// ClientID returns the session's client identifier.
func (s *Session) ClientID() string { return s.clientID }

// Endpoint returns the normalized server address.
func (s *Session) Endpoint() Endpoint { return s.endpoint }

// Policy is sequential: one streaming session accepts one job at a time.
func (s *Session) Policy() backend.Policy { return backend.SequentialPolicy() }

// PrepareReference uploads the file once per content hash and returns the
// server-side filename to substitute into the reference node.
func (s *Session) PrepareReference(ctx context.Context, file backend.LocalFile) (backend.Reference, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return backend.Reference{}, backend.Rejected(name, "read reference: %v", err)
	}
	uploadName := contentName(data, file)
	if cached, ok := s.uploads.Get(uploadName); ok {
		return backend.Reference{Value: cached.(string)}, nil
	}
	serverName, err := s.upload(ctx, uploadName, data)
	if err != nil {
		return backend.Reference{}, err
	}
	s.uploads.SetDefault(uploadName, serverName)
	return backend.Reference{Value: serverName}, nil
}

// contentName derives a stable upload name so every server in a pool stores
// the same file under the same name.
func contentName(data []byte, file backend.LocalFile) string {
	sum := sha256.Sum256(data)
	ext := strings.ToLower(filepath.Ext(file.Path))
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	return "ref-" + hex.EncodeToString(sum[:8]) + ext
}

func (s *Session) upload(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("nodegraph: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("nodegraph: build upload: %w", err)
	}
	_ = form.WriteField("overwrite", "true")
	_ = form.WriteField("type", "input")
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("nodegraph: build upload: %w", err)
	}

	var decoded struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.endpoint.HTTPURL("/upload/image", nil), form.FormDataContentType(), &body, &decoded); err != nil {
		return "", err
	}
	if decoded.Name == "" {
		return "", backend.Rejected(name, "upload returned no filename")
	}
	if decoded.Subfolder != "" {
		return decoded.Subfolder + "/" + decoded.Name, nil
	}
	return decoded.Name, nil
}

// GenerateImage runs one graph end to end: parameterize, enqueue, await the
// completion event, then fetch the first image output.
func (s *Session) GenerateImage(ctx context.Context, job backend.ImageJob) (*backend.Artifact, error) {
	tmpl, err := s.templates.Get(job.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	width, height := job.Resolution.Dimensions()
	params := Params{Prompt: job.Prompt, Seed: job.Seed, Width: width, Height: height}
	if job.Reference != nil {
		params.Reference = job.Reference.Value
	}
	if params.Seed == 0 {
		params.Seed = backend.DeterministicSeed(job.Prompt, width, height, params.Reference)
	}
	graph, err := tmpl.Apply(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Dial before enqueueing so the completion event cannot be missed.
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	promptID, err := s.enqueue(ctx, graph)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("prompt_id", promptID).Str("template", string(job.Template)).Logger()
	log.Debug().Msg("nodegraph: job enqueued")

	result := waitForCompletion(ctx, conn, promptID)
	switch result.Outcome {
	case OutcomeCompleted:
	case OutcomeFailed:
		return nil, backend.Rejected(name, "job %s failed: %s", promptID, result.Detail)
	case OutcomeTimedOut, OutcomeCanceled:
		return nil, backend.Unavailable(name, ctx.Err(), "job %s %s", promptID, result.Outcome)
	default:
		return nil, backend.Unavailable(name, nil, "event channel closed while waiting for job %s: %s", promptID, result.Detail)
	}
	log.Debug().Msg("nodegraph: job completed")

	out, err := s.firstImageOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, out)
}

// GenerateVideo is not offered by node-graph templates.
func (s *Session) GenerateVideo(context.Context, backend.VideoJob) (*backend.Artifact, error) {
	return nil, backend.Unsupported(name, "video generation")
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	target := s.endpoint.WSURL("/ws", url.Values{"clientId": {s.clientID}})
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, backend.Unavailable(name, err, "connect event channel %s", s.endpoint.Host)
	}
	return conn, nil
}

func (s *Session) enqueue(ctx context.Context, graph Graph) (string, error) {
	payload, err := json.Marshal(map[string]any{"prompt": graph, "client_id": s.clientID})
	if err != nil {
		return "", fmt.Errorf("nodegraph: encode graph: %w", err)
	}
	var decoded struct {
		PromptID   string         `json:"prompt_id"`
		NodeErrors map[string]any `json:"node_errors"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.endpoint.HTTPURL("/prompt", nil), "application/json", bytes.NewReader(payload), &decoded); err != nil {
		return "", err
	}
	if len(decoded.NodeErrors) > 0 {
		return "", backend.Rejected(name, "graph rejected: %v", decoded.NodeErrors)
	}
	if decoded.PromptID == "" {
		return "", backend.Rejected(name, "enqueue returned no prompt id")
	}
	return decoded.PromptID, nil
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

func (s *Session) firstImageOutput(ctx context.Context, promptID string) (outputImage, error) {
	var history map[string]struct {
		Outputs map[string]struct {
			Images []outputImage `json:"images"`
		} `json:"outputs"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.endpoint.HTTPURL("/history/"+url.PathEscape(promptID), nil), "", nil, &history); err != nil {
		return outputImage{}, err
	}
	entry, ok := history[promptID]
	if !ok {
		return outputImage{}, backend.Rejected(name, "no history for job %s", promptID)
	}
	for _, nodeID := range sortedIDs(entry.Outputs) {
		images := entry.Outputs[nodeID].Images
		if len(images) > 0 && images[0].Filename != "" {
			return images[0], nil
		}
	}
	return outputImage{}, backend.Rejected(name, "backend produced no output")
}

func (s *Session) view(ctx context.Context, out outputImage) (*backend.Artifact, error) {
	kind := out.Type
	if kind == "" {
		kind = "output"
	}
	target := s.endpoint.HTTPURL("/view", url.Values{
		"filename":  {out.Filename},
		"subfolder": {out.Subfolder},
		"type":      {kind},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("nodegraph: build view request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, backend.Unavailable(name, err, "GET /view")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, backend.Rejected(name, "view %s: status %d", out.Filename, resp.StatusCode)
	}
	data, err := backend.ReadAllWithLimit(resp.Body, s.maxBytes)
	if err != nil {
		return nil, backend.Unavailable(name, err, "read %s", out.Filename)
	}
	if len(data) == 0 {
		return nil, backend.Rejected(name, "view %s returned no bytes", out.Filename)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = mimetype.Detect(data).String()
	}
	return &backend.Artifact{Data: data, MIME: mime}, nil
}

func (s *Session) doJSON(ctx context.Context, method, target, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("nodegraph: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return backend.Unavailable(name, err, "%s %s", method, req.URL.Path)
	}
	defer resp.Body.Close()
	raw, err := backend.ReadAllWithLimit(resp.Body, s.maxBytes)
	if err != nil {
		return backend.Unavailable(name, err, "read %s", req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(raw))
		if len(text) > 300 {
			text = text[:300]
		}
		return backend.Rejected(name, "%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, text)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backend.Rejected(name, "%s %s: malformed response: %v", method, req.URL.Path, err)
	}
	return nil
}

var _ backend.Adapter = (*Session)(nil)
