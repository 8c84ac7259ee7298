package handlers

import (
	"net/http"

	"cinemastudio/internal/studio"
)

// GenerateImage handles POST /generate-image.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.Studio.GenerateImage(r.Context(), studio.ImageRequest{
		Prompt:          req.Prompt,
		Camera:          req.Camera,
		Lens:            req.Lens,
		FocalLength:     req.FocalLength,
		AspectRatio:     req.AspectRatio,
		ReferenceImages: req.ReferenceImages,
		ImageStrength:   req.ImageStrength,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "success", "imageUrl": item.Locator, "id": item.ID})
}

// GenerateVideo handles POST /generate-video.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req generateVideoRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.Studio.GenerateVideo(r.Context(), studio.VideoRequest{
		ImageURL:    req.ImageURL,
		Prompt:      req.Prompt,
		Camera:      req.Camera,
		Lens:        req.Lens,
		FocalLength: req.FocalLength,
		Zoom:        req.Zoom,
		Horizontal:  req.Horizontal,
		Vertical:    req.Vertical,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "success", "videoUrl": item.Locator, "id": item.ID})
}

// Multishot handles POST /generate-multishot.
func (a *App) Multishot(w http.ResponseWriter, r *http.Request) {
	var req multishotRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.SourceImageID <= 0 {
		a.error(w, http.StatusUnprocessableEntity, "invalid_request", "sourceImageId is required")
		return
	}
	ids, err := a.Studio.Multishot(r.Context(), req.SourceImageID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "success", "proxyIds": nonNil(ids)})
}

// UpscaleProxies handles POST /upscale-proxies.
func (a *App) UpscaleProxies(w http.ResponseWriter, r *http.Request) {
	var req upscaleRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids, err := a.Studio.UpscaleProxies(r.Context(), req.ProxyIDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "success", "upscaledIds": nonNil(ids), "upscaledCount": len(ids)})
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
