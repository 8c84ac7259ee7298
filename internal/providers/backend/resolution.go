package backend

import (
	"encoding/json"
	"strings"
)

// PresetLandscape is the named preset used for unrecognized aspect ratios.
const PresetLandscape = "landscape_16_9"

// Resolution is either an explicit width/height pair or a named preset.
type Resolution struct {
	Width  int
	Height int
	Preset string
}

// Explicit reports whether the resolution carries dimensions.
func (r Resolution) Explicit() bool {
	return r.Preset == "" && r.Width > 0 && r.Height > 0
}

// Dimensions returns concrete pixels, expanding presets for backends that
// only accept numbers.
func (r Resolution) Dimensions() (int, int) {
	if r.Explicit() {
		return r.Width, r.Height
	}
	if dims, ok := presetDimensions[r.Preset]; ok {
		return dims[0], dims[1]
	}
	return 1344, 768
}

// MarshalJSON encodes presets as a bare string and explicit sizes as
// {"width":W,"height":H}.
func (r Resolution) MarshalJSON() ([]byte, error) {
	if !r.Explicit() {
		return json.Marshal(r.Preset)
	}
	return json.Marshal(struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}{r.Width, r.Height})
}

var aspectResolutions = map[string]Resolution{
	"21:9": {Width: 1680, Height: 720},
	"16:9": {Width: 1344, Height: 768},
	"4:3":  {Width: 1152, Height: 864},
	"1:1":  {Width: 1024, Height: 1024},
	"9:16": {Width: 768, Height: 1344},
}

var presetDimensions = map[string][2]int{
	PresetLandscape: {1344, 768},
}

// ResolutionFor maps an aspect ratio to the resolution sent to backends.
func ResolutionFor(aspect string) Resolution {
	if res, ok := aspectResolutions[strings.TrimSpace(aspect)]; ok {
		return res
	}
	return Resolution{Preset: PresetLandscape}
}
