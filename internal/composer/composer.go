// Package composer turns user input into the exact prompt text and template
// choice sent to a generation backend. Everything here is pure.
package composer

import (
	"fmt"
	"strings"

	"cinemastudio/internal/providers/backend"
)

// ShotDelimiter separates the subject description of a composed prompt from
// its camera suffix.
const ShotDelimiter = ". Shot on "

// QualityTags close every composed prompt.
const QualityTags = "Cinematic lighting, photorealistic, 8k, film grain."

// Shot is the creative input of one generation.
type Shot struct {
	Prompt      string
	Camera      string
	Lens        string
	FocalLength string
}

// Compose renders "<prompt>. Shot on <camera> with a <lens> <focal> lens.
// <quality tags>". A blank focal length is left out.
func Compose(s Shot) string {
	subject := strings.TrimSpace(s.Prompt)
	subject = strings.TrimRight(subject, ". ")
	return subject + technicalSuffix(s)
}

// ComposeAngle builds a multishot variant prompt: the angle clause, then the
// parent's subject description, then the original camera metadata.
func ComposeAngle(parentPrompt string, angle Angle, s Shot) string {
	subject := BaseSubject(parentPrompt)
	if subject == "" {
		subject = strings.TrimRight(strings.TrimSpace(s.Prompt), ". ")
	}
	return strings.TrimSpace(angle.Clause) + ", " + subject + technicalSuffix(s)
}

// BaseSubject strips the camera suffix from a composed prompt. Prompts that
// never went through Compose are returned trimmed.
func BaseSubject(composed string) string {
	subject := composed
	if idx := strings.Index(composed, ShotDelimiter); idx >= 0 {
		subject = composed[:idx]
	}
	return strings.TrimRight(strings.TrimSpace(subject), ". ")
}

func technicalSuffix(s Shot) string {
	var b strings.Builder
	b.WriteString(ShotDelimiter)
	b.WriteString(strings.TrimSpace(s.Camera))
	b.WriteString(" with a ")
	b.WriteString(strings.TrimSpace(s.Lens))
	if focal := strings.TrimSpace(s.FocalLength); focal != "" {
		b.WriteString(" ")
		b.WriteString(focal)
	}
	b.WriteString(" lens. ")
	b.WriteString(QualityTags)
	return b.String()
}

// SelectTemplate picks the reference pipeline iff at least one reference
// image was supplied.
func SelectTemplate(refCount int) backend.Template {
	if refCount >= 1 {
		return backend.TemplateReference
	}
	return backend.TemplateTextToImage
}

// ComposeVideo appends a camera movement clause to the composed shot.
func ComposeVideo(s Shot, m backend.CameraMotion) string {
	return Compose(s) + " " + MovementClause(m)
}

// MovementClause describes the virtual camera move in words.
func MovementClause(m backend.CameraMotion) string {
	var moves []string
	switch {
	case m.Zoom > 0:
		moves = append(moves, fmt.Sprintf("%s push in", intensity(m.Zoom)))
	case m.Zoom < 0:
		moves = append(moves, fmt.Sprintf("%s pull out", intensity(m.Zoom)))
	}
	switch {
	case m.Horizontal > 0:
		moves = append(moves, fmt.Sprintf("%s pan right", intensity(m.Horizontal)))
	case m.Horizontal < 0:
		moves = append(moves, fmt.Sprintf("%s pan left", intensity(m.Horizontal)))
	}
	switch {
	case m.Vertical > 0:
		moves = append(moves, fmt.Sprintf("%s tilt up", intensity(m.Vertical)))
	case m.Vertical < 0:
		moves = append(moves, fmt.Sprintf("%s tilt down", intensity(m.Vertical)))
	}
	if len(moves) == 0 {
		return "Static camera."
	}
	return "Camera movement: " + strings.Join(moves, ", ") + "."
}

// intensity buckets the -10..10 control range.
func intensity(v float64) string {
	if v < 0 {
		v = -v
	}
	switch {
	case v >= 7:
		return "fast"
	case v >= 3:
		return "steady"
	default:
		return "slow"
	}
}
