package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type SpeedRating string

const (
	SpeedFast    SpeedRating = "Fast"
	SpeedMedium  SpeedRating = "Medium"
	SpeedSlow    SpeedRating = "Slow"
	SpeedUnknown SpeedRating = "Unknown"
)

// ModelPrice is one catalog entry. Rates are USD per one million tokens.
// Zero values of the optional fields mean the field is absent.
type ModelPrice struct {
	ID                   string       `json:"id" yaml:"id"`
	Name                 string       `json:"name" yaml:"name"`
	Provider             string       `json:"provider" yaml:"provider"`
	ProviderLogoURL      string       `json:"providerLogoUrl,omitempty" yaml:"providerLogoUrl,omitempty"`
	InputCostPerMillion  float64      `json:"inputCostPerMillionTokens" yaml:"inputCostPerMillionTokens"`
	OutputCostPerMillion float64      `json:"outputCostPerMillionTokens" yaml:"outputCostPerMillionTokens"`
	ContextWindow        int          `json:"contextWindow,omitempty" yaml:"contextWindow,omitempty"`
	Capabilities         Capabilities `json:"keyCapabilities,omitempty" yaml:"keyCapabilities,omitempty"`
	Speed                SpeedRating  `json:"speedRating,omitempty" yaml:"speedRating,omitempty"`
	Quality              int          `json:"qualityRating,omitempty" yaml:"qualityRating,omitempty"`
	LastUpdated          string       `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	DocsURL              string       `json:"officialDocsLink,omitempty" yaml:"officialDocsLink,omitempty"`
	Notes                string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Capabilities accepts either a comma separated string or a list of strings.
type Capabilities []string

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*c = normalizeCapabilities(list)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("keyCapabilities: expected string or list: %w", err)
	}
	*c = normalizeCapabilities(splitCapabilities(joined))
	return nil
}

func (c *Capabilities) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return fmt.Errorf("keyCapabilities: %w", err)
		}
		*c = normalizeCapabilities(list)
	case yaml.ScalarNode:
		*c = normalizeCapabilities(splitCapabilities(node.Value))
	default:
		return fmt.Errorf("keyCapabilities: expected string or list at line %d", node.Line)
	}
	return nil
}

func (c Capabilities) String() string {
	return strings.Join(c, ", ")
}

// splitCapabilities splits on commas outside parentheses, so
// "Multimodal (text, image), fast" yields two entries.
func splitCapabilities(joined string) []string {
	parts := []string{}
	depth, start := 0, 0
	for i, r := range joined {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, joined[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, joined[start:])
}

func normalizeCapabilities(values []string) Capabilities {
	out := make(Capabilities, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m ModelPrice) clone() ModelPrice {
	if m.Capabilities != nil {
		m.Capabilities = append(Capabilities(nil), m.Capabilities...)
	}
	return m
}
