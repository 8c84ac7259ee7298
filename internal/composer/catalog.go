package composer

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Catalog size bounds accepted from deployments.
const (
	MinAngles = 6
	MaxAngles = 9
)

//go:embed angles.toml
var defaultCatalog string

// Angle is one fixed multishot variant.
type Angle struct {
	Key    string `toml:"key"`
	Label  string `toml:"label"`
	Clause string `toml:"clause"`
}

type catalogFile struct {
	Angles []Angle `toml:"angle"`
}

// DefaultCatalog returns the embedded nine-angle catalog.
func DefaultCatalog() []Angle {
	angles, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("composer: embedded catalog: %v", err))
	}
	return angles
}

// LoadCatalog reads a TOML catalog from path, or the embedded default when
// path is blank.
func LoadCatalog(path string) ([]Angle, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("composer: read angle catalog: %w", err)
	}
	return normalizeCatalog(file.Angles)
}

// ParseCatalog decodes a TOML catalog document.
func ParseCatalog(doc string) ([]Angle, error) {
	var file catalogFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, fmt.Errorf("composer: decode angle catalog: %w", err)
	}
	return normalizeCatalog(file.Angles)
}

func normalizeCatalog(in []Angle) ([]Angle, error) {
	if len(in) < MinAngles || len(in) > MaxAngles {
		return nil, fmt.Errorf("composer: angle catalog has %d entries, want %d-%d", len(in), MinAngles, MaxAngles)
	}
	title := cases.Title(language.English)
	seen := make(map[string]bool, len(in))
	out := make([]Angle, 0, len(in))
	for i, a := range in {
		a.Key = strings.ToLower(strings.TrimSpace(a.Key))
		a.Clause = strings.TrimSpace(a.Clause)
		if a.Key == "" || a.Clause == "" {
			return nil, fmt.Errorf("composer: angle %d needs key and clause", i+1)
		}
		if seen[a.Key] {
			return nil, fmt.Errorf("composer: duplicate angle %q", a.Key)
		}
		seen[a.Key] = true
		if strings.TrimSpace(a.Label) == "" {
			a.Label = title.String(a.Key)
		}
		out = append(out, a)
	}
	return out, nil
}
