package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
	"cinemastudio/internal/studio"
)

// maxBodyBytes bounds request bodies; uploads carry base64 images.
const maxBodyBytes = 48 << 20

// App holds the dependencies shared by every handler.
type App struct {
	Studio *studio.Service
	Logger infra.Logger
}

// NewApp builds the handler container.
func NewApp(svc *studio.Service, logger infra.Logger) *App {
	return &App{Studio: svc, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps a service error onto the error taxonomy. Server-side failures
// keep the backend's message so a client can tell unreachable from failed.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("code", code).
			Str("backend", backend.BackendName(err)).
			Msg("request failed")
	}
	a.error(w, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnsupported):
		return http.StatusUnprocessableEntity, "invalid_request", err.Error()
	case errors.Is(err, studio.ErrSourceMissing):
		return http.StatusInternalServerError, "reference_unresolved", err.Error()
	case errors.Is(err, domain.ErrResourceResolution):
		return http.StatusNotFound, "reference_unresolved", err.Error()
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusInternalServerError, "backend_unreachable", err.Error()
	case errors.Is(err, domain.ErrBackendRejected):
		return http.StatusInternalServerError, "generation_failed", err.Error()
	case errors.Is(err, studio.ErrReferenceUpload):
		return http.StatusInternalServerError, "generation_failed", err.Error()
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// decode reads a JSON body. It writes the 400 response itself and reports
// whether the handler should continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "bad_request", "payload too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// idParam parses a positive integer path parameter.
func (a *App) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
