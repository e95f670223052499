package registry

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/apiforge/forge/assemble"
	"github.com/apiforge/forge/synth"
)

// Tier is one level of the settings hierarchy. Nil pointers mean "not set
// at this tier"; resolution falls through to the next one.
type Tier struct {
	MaxNestedDepth *int  `koanf:"max_nested_depth"`
	BatchSize      *int  `koanf:"batch_size"`
	MaxObjects     *int  `koanf:"max_objects"`
	Filterable     *bool `koanf:"filterable"`
}

// ModelSettings is the model tier plus its field tiers.
type ModelSettings struct {
	Tier   `koanf:",squash"`
	Fields map[string]Tier `koanf:"fields"`
}

// SchemaUnit names a schema and the models it exposes. An empty model list
// exposes every registered model.
type SchemaUnit struct {
	Models []string `koanf:"models"`
}

// Config is the registry's declarative configuration: the global defaults
// tier, per-model overrides and the named schema units.
type Config struct {
	Defaults Tier                     `koanf:"defaults"`
	Models   map[string]ModelSettings `koanf:"models"`
	Schemas  map[string]SchemaUnit    `koanf:"schemas"`
}

// Resolved is a fully-merged settings view.
type Resolved struct {
	MaxNestedDepth int
	BatchSize      int
	MaxObjects     int
	Filterable     bool
}

// libraryDefaults is the bottom tier of the precedence chain.
func libraryDefaults() Resolved {
	return Resolved{
		MaxNestedDepth: synth.DefaultMaxNestedDepth,
		BatchSize:      assemble.DefaultBatchSize,
		MaxObjects:     assemble.DefaultMaxObjects,
		Filterable:     true,
	}
}

// Resolve merges the settings tiers with field > model > global > default
// precedence. It is a pure function; the registry memoizes its result on
// the built schema.
func Resolve(global Tier, model *ModelSettings, fieldName string) Resolved {
	out := libraryDefaults()
	apply(&out, global)
	if model != nil {
		apply(&out, model.Tier)
		if fieldName != "" {
			if f, ok := model.Fields[fieldName]; ok {
				apply(&out, f)
			}
		}
	}
	if out.MaxNestedDepth > synth.MaxNestedDepthCeiling {
		out.MaxNestedDepth = synth.MaxNestedDepthCeiling
	}
	if out.MaxNestedDepth < 1 {
		out.MaxNestedDepth = 1
	}
	return out
}

func apply(out *Resolved, t Tier) {
	if t.MaxNestedDepth != nil {
		out.MaxNestedDepth = *t.MaxNestedDepth
	}
	if t.BatchSize != nil {
		out.BatchSize = *t.BatchSize
	}
	if t.MaxObjects != nil {
		out.MaxObjects = *t.MaxObjects
	}
	if t.Filterable != nil {
		out.Filterable = *t.Filterable
	}
}

// LoadConfig reads a YAML configuration file into a Config. A missing path
// yields the zero Config, leaving every setting at the library default.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"defaults": map[string]any{},
		"schemas":  map[string]any{},
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}
	if path != "" {
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil, fmt.Errorf("unsupported config file type: %s", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// schemaModels returns a unit's exposed model names, or fallback when the
// unit leaves the list empty.
func (c *Config) schemaModels(name string, fallback []string) []string {
	if c == nil {
		return fallback
	}
	unit, ok := c.Schemas[name]
	if !ok || len(unit.Models) == 0 {
		return fallback
	}
	return unit.Models
}

// modelSettings returns the model tier, or nil when none is declared.
func (c *Config) modelSettings(model string) *ModelSettings {
	if c == nil {
		return nil
	}
	if ms, ok := c.Models[model]; ok {
		return &ms
	}
	return nil
}

// globalTier returns the defaults tier.
func (c *Config) globalTier() Tier {
	if c == nil {
		return Tier{}
	}
	return c.Defaults
}
