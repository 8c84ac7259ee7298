package nodegraph

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"cinemastudio/internal/providers/backend"
)

//go:embed templates/*.json
var embeddedTemplates embed.FS

// Node is one operation of an API-format job graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph maps node ids to nodes.
type Graph map[string]Node

// Descriptor records which nodes of a template carry the per-job
// parameters. It is resolved once when the template is loaded.
type Descriptor struct {
	SeedNode       string
	SeedInput      string
	PromptNode     string
	PromptInput    string
	DimensionsNode string
	ReferenceNode  string
}

// Template is a loaded graph plus its descriptor.
type Template struct {
	Name       backend.Template
	Graph      Graph
	Descriptor Descriptor
}

// Params are the values written into a template for one job.
type Params struct {
	Prompt    string
	Seed      int64
	Width     int
	Height    int
	Reference string
}

// Binding is an explicit descriptor override from the manifest.
type Binding struct {
	File           string `toml:"file"`
	SeedNode       string `toml:"seed_node"`
	PromptNode     string `toml:"prompt_node"`
	DimensionsNode string `toml:"dimensions_node"`
	ReferenceNode  string `toml:"reference_node"`
}

// Manifest lets a deployment swap template files or pin node roles.
type Manifest struct {
	Templates map[string]Binding `toml:"templates"`
}

var (
	samplerClasses    = []string{"KSampler", "KSamplerAdvanced"}
	dimensionClasses  = []string{"EmptyLatentImage", "EmptySD3LatentImage", "ImageScale"}
	referenceClass    = "LoadImage"
	errNoTextEncoder  = errors.New("no text encoder reachable from sampler positive input")
	requiredTemplates = []backend.Template{backend.TemplateTextToImage, backend.TemplateReference}
)

// TemplateSet holds the templates an adapter can run.
type TemplateSet struct {
	templates map[backend.Template]*Template
}

// LoadTemplates reads the embedded templates and applies the optional TOML
// manifest at manifestPath.
func LoadTemplates(manifestPath string) (*TemplateSet, error) {
	var manifest Manifest
	if strings.TrimSpace(manifestPath) != "" {
		if _, err := toml.DecodeFile(manifestPath, &manifest); err != nil {
			return nil, fmt.Errorf("nodegraph: read template manifest: %w", err)
		}
	}
	set := &TemplateSet{templates: make(map[backend.Template]*Template, len(requiredTemplates))}
	for _, name := range requiredTemplates {
		binding := manifest.Templates[string(name)]
		raw, err := readTemplate(name, binding.File)
		if err != nil {
			return nil, err
		}
		tmpl, err := ParseTemplate(name, raw, binding)
		if err != nil {
			return nil, err
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

func readTemplate(name backend.Template, file string) ([]byte, error) {
	if strings.TrimSpace(file) != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("nodegraph: read template %s: %w", name, err)
		}
		return raw, nil
	}
	raw, err := embeddedTemplates.ReadFile("templates/" + string(name) + ".json")
	if err != nil {
		return nil, fmt.Errorf("nodegraph: embedded template %s: %w", name, err)
	}
	return raw, nil
}

// Get returns the named template.
func (s *TemplateSet) Get(name backend.Template) (*Template, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("nodegraph: unknown template %q", name)
	}
	return tmpl, nil
}

// ParseTemplate decodes an API-format graph and resolves its descriptor.
func ParseTemplate(name backend.Template, raw []byte, binding Binding) (*Template, error) {
	var graph Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return nil, fmt.Errorf("nodegraph: decode template %s: %w", name, err)
	}
	if len(graph) == 0 {
		return nil, fmt.Errorf("nodegraph: template %s is empty", name)
	}
	desc, err := resolveDescriptor(graph, binding)
	if err != nil {
		return nil, fmt.Errorf("nodegraph: template %s: %w", name, err)
	}
	if name == backend.TemplateReference && desc.ReferenceNode == "" {
		return nil, fmt.Errorf("nodegraph: template %s has no %s node", name, referenceClass)
	}
	return &Template{Name: name, Graph: graph, Descriptor: desc}, nil
}

func resolveDescriptor(graph Graph, binding Binding) (Descriptor, error) {
	var desc Descriptor
	ids := sortedIDs(graph)

	desc.SeedNode = binding.SeedNode
	if desc.SeedNode == "" {
		desc.SeedNode = firstOfClass(graph, ids, samplerClasses...)
	}
	seedNode, ok := graph[desc.SeedNode]
	if !ok {
		return desc, errors.New("no sampler node for seed")
	}
	desc.SeedInput = "seed"
	if _, ok := seedNode.Inputs["seed"]; !ok {
		if _, ok := seedNode.Inputs["noise_seed"]; !ok {
			return desc, fmt.Errorf("node %s has no seed input", desc.SeedNode)
		}
		desc.SeedInput = "noise_seed"
	}

	desc.PromptNode = binding.PromptNode
	if desc.PromptNode == "" {
		id, err := textEncoderFrom(graph, seedNode)
		if err != nil {
			return desc, err
		}
		desc.PromptNode = id
	}
	promptNode, ok := graph[desc.PromptNode]
	if !ok {
		return desc, fmt.Errorf("prompt node %s not found", desc.PromptNode)
	}
	desc.PromptInput = "text"
	if _, ok := promptNode.Inputs["text"].(string); !ok {
		return desc, fmt.Errorf("prompt node %s has no text input", desc.PromptNode)
	}

	desc.DimensionsNode = binding.DimensionsNode
	if desc.DimensionsNode == "" {
		desc.DimensionsNode = firstOfClass(graph, ids, dimensionClasses...)
	}
	dims, ok := graph[desc.DimensionsNode]
	if !ok {
		return desc, errors.New("no dimensions node")
	}
	if _, ok := dims.Inputs["width"]; !ok {
		return desc, fmt.Errorf("dimensions node %s has no width input", desc.DimensionsNode)
	}
	if _, ok := dims.Inputs["height"]; !ok {
		return desc, fmt.Errorf("dimensions node %s has no height input", desc.DimensionsNode)
	}

	desc.ReferenceNode = binding.ReferenceNode
	if desc.ReferenceNode == "" {
		desc.ReferenceNode = firstOfClass(graph, ids, referenceClass)
	} else if _, ok := graph[desc.ReferenceNode]; !ok {
		return desc, fmt.Errorf("reference node %s not found", desc.ReferenceNode)
	}
	return desc, nil
}

// textEncoderFrom walks upstream from the sampler's positive input until it
// reaches a node with a literal text input.
func textEncoderFrom(graph Graph, sampler Node) (string, error) {
	start, ok := linkTarget(sampler.Inputs["positive"])
	if !ok {
		return "", errNoTextEncoder
	}
	queue := []string{start}
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		node, ok := graph[id]
		if !ok {
			continue
		}
		if _, isText := node.Inputs["text"].(string); isText && strings.Contains(node.ClassType, "TextEncode") {
			return id, nil
		}
		keys := make([]string, 0, len(node.Inputs))
		for k := range node.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if target, ok := linkTarget(node.Inputs[k]); ok {
				queue = append(queue, target)
			}
		}
	}
	return "", errNoTextEncoder
}

// linkTarget decodes a ["<node id>", <output index>] input link.
func linkTarget(v any) (string, bool) {
	link, ok := v.([]any)
	if !ok || len(link) != 2 {
		return "", false
	}
	id, ok := link[0].(string)
	if !ok {
		return "", false
	}
	if _, ok := link[1].(float64); !ok {
		return "", false
	}
	return id, true
}

func firstOfClass(graph Graph, ids []string, classes ...string) string {
	for _, id := range ids {
		for _, class := range classes {
			if graph[id].ClassType == class {
				return id
			}
		}
	}
	return ""
}

// sortedIDs orders node ids numerically, with non-numeric ids last.
func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// Apply returns a deep copy of the template graph with the job parameters
// written into the descriptor's nodes. The template itself is never mutated.
func (t *Template) Apply(p Params) (Graph, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, errors.New("nodegraph: prompt is required")
	}
	if t.Name == backend.TemplateReference && p.Reference == "" {
		return nil, errors.New("nodegraph: reference image is required")
	}
	out := cloneGraph(t.Graph)
	d := t.Descriptor

	out[d.SeedNode].Inputs[d.SeedInput] = p.Seed
	out[d.PromptNode].Inputs[d.PromptInput] = p.Prompt
	if p.Width > 0 && p.Height > 0 {
		out[d.DimensionsNode].Inputs["width"] = p.Width
		out[d.DimensionsNode].Inputs["height"] = p.Height
	}
	if d.ReferenceNode != "" && p.Reference != "" {
		out[d.ReferenceNode].Inputs["image"] = p.Reference
	}
	return out, nil
}

func cloneGraph(g Graph) Graph {
	out := make(Graph, len(g))
	for id, node := range g {
		clone := Node{ClassType: node.ClassType, Inputs: cloneMap(node.Inputs)}
		if node.Meta != nil {
			clone.Meta = cloneMap(node.Meta)
		}
		out[id] = clone
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
