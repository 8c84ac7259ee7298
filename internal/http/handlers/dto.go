package handlers

import (
	"time"

	"cinemastudio/internal/domain"
)

type mediaResponse struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Prompt      string    `json:"prompt"`
	URL         string    `json:"url"`
	Camera      string    `json:"camera"`
	Lens        string    `json:"lens"`
	FocalLength string    `json:"focalLength"`
	IsFavorite  bool      `json:"isFavorite"`
	IsProxy     bool      `json:"isProxy"`
	ParentID    *int64    `json:"parentId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toMedia(m domain.MediaItem) mediaResponse {
	return mediaResponse{
		ID:          m.ID,
		Kind:        string(m.Kind),
		Prompt:      m.Prompt,
		URL:         m.Locator,
		Camera:      m.Camera,
		Lens:        m.Lens,
		FocalLength: m.DisplayFocalLength(),
		IsFavorite:  m.IsFavorite,
		IsProxy:     m.IsProxy,
		ParentID:    m.ParentID,
		CreatedAt:   m.CreatedAt,
	}
}

func toMediaList(items []domain.MediaItem) []mediaResponse {
	out := make([]mediaResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMedia(m))
	}
	return out
}

type uploadResponse struct {
	ID        int64     `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUploadList(items []domain.UploadItem) []uploadResponse {
	out := make([]uploadResponse, 0, len(items))
	for _, u := range items {
		out = append(out, uploadResponse{ID: u.ID, Payload: u.Payload, CreatedAt: u.CreatedAt})
	}
	return out
}

type generateImageRequest struct {
	Prompt          string   `json:"prompt"`
	Camera          string   `json:"camera"`
	Lens            string   `json:"lens"`
	FocalLength     string   `json:"focalLength"`
	AspectRatio     string   `json:"aspectRatio"`
	ReferenceImages []string `json:"referenceImages"`
	ImageStrength   *float64 `json:"imageStrength"`
}

type generateVideoRequest struct {
	ImageURL    string  `json:"imageUrl"`
	Prompt      string  `json:"prompt"`
	Camera      string  `json:"camera"`
	Lens        string  `json:"lens"`
	FocalLength string  `json:"focalLength"`
	Zoom        float64 `json:"zoom"`
	Horizontal  float64 `json:"horizontal"`
	Vertical    float64 `json:"vertical"`
}

type multishotRequest struct {
	SourceImageID int64 `json:"sourceImageId"`
}

type upscaleRequest struct {
	ProxyIDs []int64 `json:"proxyIds"`
}

type uploadRequest struct {
	Base64Data string `json:"base64Data"`
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite"`
}
