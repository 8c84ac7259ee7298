// Package hosted implements the fire-and-wait adapter for hosted inference
// APIs that accept a JSON job and answer with the result in one response.
package hosted

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
)

const name = "hosted"

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("hosted: api key is required")

// Options configures the hosted API client.
type Options struct {
	APIKey           string
	BaseURL          string
	TextModel        string
	ReferenceModel   string
	VideoModel       string
	MaxInFlight      int
	HTTPClient       *http.Client
	Logger           *infra.Logger
	RequestTimeout   time.Duration
	MaxResponseBytes int64
}

// Client performs synchronous job calls against a fal-style REST API.
type Client struct {
	apiKey         string
	baseURL        string
	textModel      string
	referenceModel string
	videoModel     string
	policy         backend.Policy
	httpClient     *http.Client
	logger         *infra.Logger
	maxBytes       int64
}

type imageRequest struct {
	Prompt              string             `json:"prompt"`
	ImageSize           backend.Resolution `json:"image_size"`
	NumInferenceSteps   int                `json:"num_inference_steps"`
	GuidanceScale       float64            `json:"guidance_scale"`
	EnableSafetyChecker bool               `json:"enable_safety_checker"`
	SyncMode            bool               `json:"sync_mode"`
	Seed                int64              `json:"seed,omitempty"`
	ReferenceImageURL   string             `json:"reference_image_url,omitempty"`
	IDWeight            *float64           `json:"id_weight,omitempty"`
}

type cameraConfig struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
	Zoom       float64 `json:"zoom"`
	Roll       float64 `json:"roll"`
	Tilt       float64 `json:"tilt"`
}

type videoRequest struct {
	Prompt        string `json:"prompt"`
	ImageURL      string `json:"image_url"`
	AspectRatio   string `json:"aspect_ratio"`
	Duration      string `json:"duration"`
	CameraControl struct {
		Config cameraConfig `json:"config"`
	} `json:"camera_control"`
}

type mediaFile struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type generationResponse struct {
	Images []mediaFile `json:"images"`
	Video  *mediaFile  `json:"video"`
	Detail any         `json:"detail"`
	Error  string      `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://fal.run"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight == 0 {
		maxInFlight = backend.MaxInFlight
	}
	return &Client{
		apiKey:         apiKey,
		baseURL:        baseURL,
		textModel:      defaultString(opts.TextModel, "fal-ai/flux/dev"),
		referenceModel: defaultString(opts.ReferenceModel, "fal-ai/flux-pulid"),
		videoModel:     defaultString(opts.VideoModel, "fal-ai/kling-video/v1.6/standard/image-to-video"),
		policy:         backend.ConcurrentPolicy(maxInFlight),
		httpClient:     httpClient,
		logger:         logger,
		maxBytes:       maxBytes,
	}, nil
}

// Name identifies the adapter in logs and errors.
func (c *Client) Name() string { return name }

// Policy reports the configured dispatch policy. Hosted APIs queue jobs
// server side, so concurrent dispatch is the default.
func (c *Client) Policy() backend.Policy { return c.policy }

// PrepareReference passes public URLs through untouched and inlines anything
// else as a data URI, since the hosted API cannot reach local addresses.
func (c *Client) PrepareReference(ctx context.Context, file backend.LocalFile) (backend.Reference, error) {
	if err := ctx.Err(); err != nil {
		return backend.Reference{}, err
	}
	if isPublicURL(file.Source) {
		return backend.Reference{Value: strings.TrimSpace(file.Source)}, nil
	}
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return backend.Reference{}, backend.Rejected(name, "read reference: %v", err)
	}
	mime := file.MIME
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return backend.Reference{Value: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)}, nil
}

// GenerateImage submits one image job and waits for the result.
func (c *Client) GenerateImage(ctx context.Context, job backend.ImageJob) (*backend.Artifact, error) {
	prompt := strings.TrimSpace(job.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: hosted: prompt is required", domain.ErrInvalidRequest)
	}
	payload := imageRequest{
		Prompt:            prompt,
		ImageSize:         job.Resolution,
		NumInferenceSteps: 30,
		GuidanceScale:     3.0,
		SyncMode:          true,
		Seed:              job.Seed,
	}
	model := c.textModel
	if job.Template == backend.TemplateReference {
		if job.Reference == nil || job.Reference.Value == "" {
			return nil, fmt.Errorf("%w: hosted: reference template without reference", domain.ErrInvalidRequest)
		}
		model = c.referenceModel
		strength := job.Strength
		payload.NumInferenceSteps = 28
		payload.ReferenceImageURL = job.Reference.Value
		payload.IDWeight = &strength
	}

	var decoded generationResponse
	if err := c.call(ctx, model, payload, &decoded); err != nil {
		return nil, err
	}
	for _, img := range decoded.Images {
		if u := strings.TrimSpace(img.URL); u != "" {
			c.logger.Debug().Str("model", model).Str("template", string(job.Template)).Msg("hosted: generated image")
			return &backend.Artifact{URL: u, MIME: img.ContentType}, nil
		}
	}
	return nil, backend.Rejected(name, "%s returned no images", model)
}

// GenerateVideo submits one image-to-video job and waits for the result.
func (c *Client) GenerateVideo(ctx context.Context, job backend.VideoJob) (*backend.Artifact, error) {
	if strings.TrimSpace(job.Reference.Value) == "" {
		return nil, fmt.Errorf("%w: hosted: video requires a source image", domain.ErrInvalidRequest)
	}
	payload := videoRequest{
		Prompt:      strings.TrimSpace(job.Prompt),
		ImageURL:    job.Reference.Value,
		AspectRatio: defaultString(job.AspectRatio, "16:9"),
		Duration:    defaultString(job.Duration, "5"),
	}
	payload.CameraControl.Config = cameraConfig{
		Horizontal: job.Motion.Horizontal,
		Vertical:   job.Motion.Vertical,
		Zoom:       job.Motion.Zoom,
	}

	var decoded generationResponse
	if err := c.call(ctx, c.videoModel, payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.Video == nil || strings.TrimSpace(decoded.Video.URL) == "" {
		return nil, backend.Rejected(name, "%s returned no video", c.videoModel)
	}
	return &backend.Artifact{URL: strings.TrimSpace(decoded.Video.URL), MIME: decoded.Video.ContentType}, nil
}

func (c *Client) call(ctx context.Context, model string, payload any, out *generationResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hosted: encode request: %w", err)
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(model, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hosted: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return backend.Unavailable(name, err, "POST %s", model)
	}
	defer resp.Body.Close()

	raw, err := backend.ReadAllWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		if backend.IsResponseTooLarge(err) {
			return backend.Rejected(name, "%s: %v", model, err)
		}
		return backend.Unavailable(name, err, "read %s response", model)
	}
	c.logger.Debug().
		Str("model", model).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("hosted: call finished")

	if resp.StatusCode >= 300 {
		return backend.Rejected(name, "%s: status %d: %s", model, resp.StatusCode, errorDetail(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backend.Rejected(name, "%s: malformed response: %v", model, err)
	}
	if out.Error != "" {
		return backend.Rejected(name, "%s: %s", model, out.Error)
	}
	return nil
}

func errorDetail(raw []byte) string {
	var decoded struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Error != "" {
			return decoded.Error
		}
		if decoded.Detail != nil {
			return fmt.Sprint(decoded.Detail)
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}

// isPublicURL reports whether raw is an http(s) URL a remote service could
// fetch, i.e. not loopback, private or link-local.
func isPublicURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	host := parsed.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
	}
	return true
}

func defaultString(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

var _ backend.Adapter = (*Client)(nil)
