package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models.json
var builtinJSON []byte

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Catalog is an immutable, ordered set of model prices keyed by id.
type Catalog struct {
	models []ModelPrice
	byID   map[string]int
}

func New(models []ModelPrice) (*Catalog, error) {
	c := &Catalog{
		models: make([]ModelPrice, 0, len(models)),
		byID:   make(map[string]int, len(models)),
	}
	for i, m := range models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("model %d: id is required", i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate model id %q", id)
		}
		m.ID = id
		c.byID[id] = len(c.models)
		c.models = append(c.models, m.clone())
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	builtinOnce.Do(func() {
		cat, err := Parse(builtinJSON, ".json")
		if err != nil {
			panic(fmt.Sprintf("builtin catalog: %v", err))
		}
		builtin = cat
	})
	return builtin
}

// LoadFile reads a catalog from a JSON array or a YAML list of records.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("catalog path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

func Parse(data []byte, ext string) (*Catalog, error) {
	var models []ModelPrice
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &models); err != nil {
			return nil, fmt.Errorf("decode json catalog: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &models); err != nil {
			return nil, fmt.Errorf("decode yaml catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (expected .json, .yaml or .yml)", ext)
	}
	return New(models)
}

func (c *Catalog) Lookup(id string) (ModelPrice, bool) {
	if c == nil {
		return ModelPrice{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return ModelPrice{}, false
	}
	return c.models[idx].clone(), true
}

// First returns the first entry, which is the default selection.
func (c *Catalog) First() (ModelPrice, bool) {
	if c == nil || len(c.models) == 0 {
		return ModelPrice{}, false
	}
	return c.models[0].clone(), true
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.models)
}

func (c *Catalog) Models() []ModelPrice {
	if c == nil {
		return nil
	}
	out := make([]ModelPrice, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m.clone())
	}
	return out
}

// ByProvider matches provider names case-insensitively, keeping catalog order.
func (c *Catalog) ByProvider(provider string) []ModelPrice {
	provider = strings.ToLower(strings.TrimSpace(provider))
	out := []ModelPrice{}
	if c == nil {
		return out
	}
	for _, m := range c.models {
		if provider == "" || strings.ToLower(m.Provider) == provider {
			out = append(out, m.clone())
		}
	}
	return out
}

func (c *Catalog) Providers() []string {
	if c == nil {
		return nil
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, m := range c.models {
		if _, ok := seen[m.Provider]; ok || m.Provider == "" {
			continue
		}
		seen[m.Provider] = struct{}{}
		out = append(out, m.Provider)
	}
	sort.Strings(out)
	return out
}
