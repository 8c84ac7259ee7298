package handlers

import (
	"fmt"
	"net/http"

	"cinemastudio/internal/domain"
	"cinemastudio/pkg/zip"
)

// History handles GET /history.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	items, err := a.Studio.History(r.Context(), limitParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toMediaList(items))
}

// Proxies handles GET /proxies/{parentId}.
func (a *App) Proxies(w http.ResponseWriter, r *http.Request) {
	parentID, ok := a.idParam(w, r, "parentId")
	if !ok {
		return
	}
	items, err := a.Studio.Proxies(r.Context(), parentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toMediaList(items))
}

// ProxyArchive handles GET /proxies/{parentId}/archive.
func (a *App) ProxyArchive(w http.ResponseWriter, r *http.Request) {
	parentID, ok := a.idParam(w, r, "parentId")
	if !ok {
		return
	}
	entries, err := a.Studio.ProxyArchive(r.Context(), parentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	files := make([]zip.File, 0, len(entries))
	for _, e := range entries {
		files = append(files, zip.File{Name: e.Name, Path: e.Path, ModTime: e.ModTime})
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=multishot-%d.zip", parentID))
	w.WriteHeader(http.StatusOK)
	if err := zip.WriteFiles(w, files); err != nil {
		a.Logger.Error().Err(err).Int64("media_id", parentID).Msg("archive write failed")
	}
}

// Delete handles DELETE /history/{id}?children=detach|cascade.
func (a *App) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	mode, err := domain.ParseDeleteMode(r.URL.Query().Get("children"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Studio.Delete(r.Context(), id, mode); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Favorite handles PUT /history/{id}/favorite.
func (a *App) Favorite(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req favoriteRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.IsFavorite == nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_request", "isFavorite is required")
		return
	}
	if err := a.Studio.SetFavorite(r.Context(), id, *req.IsFavorite); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "updated", "isFavorite": *req.IsFavorite})
}

// Duplicate handles POST /history/{id}/duplicate.
func (a *App) Duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	item, err := a.Studio.Duplicate(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "duplicated", "item": toMedia(*item)})
}

// Upload handles POST /upload.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.Studio.Upload(r.Context(), req.Base64Data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "success", "id": item.ID, "url": item.Payload})
}

// Uploads handles GET /uploads.
func (a *App) Uploads(w http.ResponseWriter, r *http.Request) {
	items, err := a.Studio.Uploads(r.Context(), limitParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toUploadList(items))
}

// Angles handles GET /angles.
func (a *App) Angles(w http.ResponseWriter, _ *http.Request) {
	catalog := a.Studio.Catalog()
	out := make([]map[string]string, 0, len(catalog))
	for _, angle := range catalog {
		out = append(out, map[string]string{"key": angle.Key, "label": angle.Label, "clause": angle.Clause})
	}
	a.json(w, http.StatusOK, out)
}
