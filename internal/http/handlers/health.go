package handlers

import (
	"net/http"
)

// Health reports the active backend and how multishot jobs are dispatched
// against it.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backend":  a.Studio.Backend(),
		"dispatch": a.Studio.Policy().String(),
		"angles":   len(a.Studio.Catalog()),
	})
}
