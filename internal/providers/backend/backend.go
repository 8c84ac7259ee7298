// Package backend defines the uniform contract every generative backend
// adapter satisfies, plus the pieces shared between adapters: the
// resolution table, dispatch policy and error classification.
package backend

import (
	"context"
	"path/filepath"

	"cinemastudio/internal/domain"
)

// Template names a generation pipeline variant.
type Template string

const (
	TemplateTextToImage Template = "text2img"
	TemplateReference   Template = "reference"
)

// Adapter translates orchestrator intent into one backend's wire protocol.
type Adapter interface {
	Name() string
	Policy() Policy
	// PrepareReference makes a local file addressable by the backend, e.g. by
	// uploading it or encoding it inline.
	PrepareReference(ctx context.Context, file LocalFile) (Reference, error)
	GenerateImage(ctx context.Context, job ImageJob) (*Artifact, error)
	// GenerateVideo returns domain.ErrUnsupported when the backend has no
	// video pipeline.
	GenerateVideo(ctx context.Context, job VideoJob) (*Artifact, error)
}

// LocalFile is a reference image materialized on local disk.
type LocalFile struct {
	Path string
	MIME string
	// Source is the caller-supplied value the file was resolved from.
	Source string
}

// Name returns the file's base name.
func (f LocalFile) Name() string {
	return filepath.Base(f.Path)
}

// Reference is a backend-addressable handle for a prepared reference image:
// a URL or data URI for hosted APIs, a server-side filename for node graphs.
type Reference struct {
	Value string
}

// ImageJob is one fully composed image request.
type ImageJob struct {
	Template    Template
	Prompt      string
	AspectRatio string
	Resolution  Resolution
	Reference   *Reference
	Strength    float64
	Seed        int64
}

// CameraMotion describes the virtual camera move of a video job.
type CameraMotion struct {
	Horizontal float64
	Vertical   float64
	Zoom       float64
}

// VideoJob is one fully composed image-to-video request.
type VideoJob struct {
	Prompt      string
	Reference   Reference
	AspectRatio string
	Motion      CameraMotion
	Duration    string
}

// Artifact is a backend result. Either URL or Data is set; MIME may be empty
// when the backend does not report it.
type Artifact struct {
	URL  string
	Data []byte
	MIME string
}

// Unsupported is returned by adapters lacking a capability.
func Unsupported(name, capability string) error {
	return &Error{Backend: name, Kind: domain.ErrUnsupported, Detail: capability + " is not supported"}
}
