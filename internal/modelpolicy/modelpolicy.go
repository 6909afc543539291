// Package modelpolicy loads optional per-model generation ceilings from a
// YAML file, following the same Config+Rules+yaml.Unmarshal shape used
// elsewhere in this codebase family for routing/admission policy. It
// clamps the bounded options named in the task data model (max_tokens,
// temperature) rather than making routing decisions.
package modelpolicy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Model          string   `yaml:"model"`
	MaxTokensCeil  int      `yaml:"max_tokens_ceiling"`
	TemperatureCap *float64 `yaml:"temperature_ceiling"`
}

type Config struct {
	DefaultModel string `yaml:"default_model"`
	Rules        []Rule `yaml:"rules"`
}

type Policy struct {
	cfg Config
}

func Default(defaultModel string) *Policy {
	return &Policy{cfg: Config{DefaultModel: defaultModel}}
}

// Load reads a policy file if path is non-empty; an empty path yields the
// unrestricted default policy.
func Load(path, defaultModel string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(defaultModel), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modelpolicy: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("modelpolicy: parse %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = defaultModel
	}
	return &Policy{cfg: cfg}, nil
}

func (p *Policy) DefaultModel() string {
	return p.cfg.DefaultModel
}

// Clamp applies the matching rule's ceilings, if any, to maxTokens and
// temperature. Values already under the ceiling are left untouched.
func (p *Policy) Clamp(model string, maxTokens int, temperature float64) (int, float64) {
	for _, r := range p.cfg.Rules {
		if r.Model != "" && r.Model != model {
			continue
		}
		if r.MaxTokensCeil > 0 && maxTokens > r.MaxTokensCeil {
			maxTokens = r.MaxTokensCeil
		}
		if r.TemperatureCap != nil && temperature > *r.TemperatureCap {
			temperature = *r.TemperatureCap
		}
	}
	return maxTokens, temperature
}
