// Package registry combines per-model operations into named schema units.
// Each unit is built into an immutable snapshot that readers share without
// locking; rebuilds are explicit and serialized per unit so readers never
// observe a half-built descriptor set.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/assemble"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/synth"
)

// Schema is one built, immutable schema unit.
type Schema struct {
	// Name holds the unit name.
	Name string
	// Models lists the successfully built models in declaration order.
	Models []string
	// Excluded maps failed models to their build error.
	Excluded map[string]error
	// Operations holds every exposed operation, grouped in model order.
	Operations []*assemble.OperationDescriptor
	// Assembler executes the schema's operations.
	Assembler *assemble.Assembler
	// Settings holds the memoized per-model resolved settings.
	Settings map[string]Resolved
	// BuiltAt records when the snapshot was assembled.
	BuiltAt time.Time
}

// Operation returns the operation descriptor with the given exposed name.
func (s *Schema) Operation(name string) (*assemble.OperationDescriptor, bool) {
	for _, op := range s.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return nil, false
}

// Registry owns the declared models, the settings configuration and the
// built schema snapshots.
type Registry struct {
	models  []model.Model
	storage forge.Storage
	auth    forge.Authorizer
	log     zerolog.Logger
	cfgPath string

	mu      sync.RWMutex
	cfg     *Config
	schemas map[string]*Schema

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithAuthorizer sets the authorization collaborator handed to assemblers.
func WithAuthorizer(a forge.Authorizer) Option {
	return func(r *Registry) {
		r.auth = a
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithConfigFile loads settings from a YAML file and enables Watch.
func WithConfigFile(path string) Option {
	return func(r *Registry) {
		r.cfgPath = path
	}
}

// WithConfig sets the settings configuration directly.
func WithConfig(cfg *Config) Option {
	return func(r *Registry) {
		r.cfg = cfg
	}
}

// New returns a Registry over the declared models, executing against
// storage.
func New(models []model.Model, storage forge.Storage, opts ...Option) (*Registry, error) {
	r := &Registry{
		models:  models,
		storage: storage,
		auth:    forge.AllowAll,
		log:     zerolog.Nop(),
		schemas: make(map[string]*Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfgPath != "" && r.cfg == nil {
		cfg, err := LoadConfig(r.cfgPath)
		if err != nil {
			return nil, err
		}
		r.cfg = cfg
	}
	return r, nil
}

// Build assembles the named schema unit and installs it as the current
// snapshot. Builds of the same unit are serialized; concurrent callers
// share one result. Per-model failures exclude the model and are collected
// into a BuildError returned alongside the still-usable schema.
func (r *Registry) Build(ctx context.Context, name string) (*Schema, error) {
	v, err, _ := r.group.Do(name, func() (any, error) {
		schema, buildErr := r.buildSchema(name)
		r.mu.Lock()
		r.schemas[name] = schema
		r.mu.Unlock()
		return schema, buildErr
	})
	schema, _ := v.(*Schema)
	return schema, err
}

// Schema returns the current snapshot of a built unit.
func (r *Registry) Schema(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Schemas returns the names of the built units.
func (r *Registry) Schemas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSettings merges the three settings tiers for a model or one of
// its fields. Built schemas carry the model-level result memoized.
func (r *Registry) ResolveSettings(model, fieldName string) Resolved {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()
	return Resolve(cfg.globalTier(), cfg.modelSettings(model), fieldName)
}

// buildSchema assembles one unit from scratch.
func (r *Registry) buildSchema(name string) (*Schema, error) {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	extractor := introspect.New(r.models, introspect.WithLogger(r.log))
	descs, failed := extractor.ExtractAll()
	syn := synth.NewSynthesizer(descs)

	unitModels := cfg.schemaModels(name, extractor.Models())
	excluded := make(map[string]error)
	settings := make(map[string]Resolved, len(unitModels))
	for _, m := range unitModels {
		settings[m] = Resolve(cfg.globalTier(), cfg.modelSettings(m), "")
	}

	as := assemble.New(syn, r.storage,
		assemble.WithAuthorizer(r.auth),
		assemble.WithLogger(r.log),
		assemble.WithBatchSize(Resolve(cfg.globalTier(), nil, "").BatchSize),
		assemble.WithMaxObjects(Resolve(cfg.globalTier(), nil, "").MaxObjects),
		assemble.WithFilterResolver(func(m string) synth.FilterConfig {
			resolved, ok := settings[m]
			if !ok {
				resolved = Resolve(cfg.globalTier(), cfg.modelSettings(m), "")
			}
			return synth.FilterConfig{
				MaxNestedDepth: resolved.MaxNestedDepth,
				ExcludeField: func(model, field string) bool {
					return !Resolve(cfg.globalTier(), cfg.modelSettings(model), field).Filterable
				},
				Logger: r.log,
			}
		}),
	)

	schema := &Schema{
		Name:      name,
		Excluded:  excluded,
		Assembler: as,
		Settings:  settings,
		BuiltAt:   time.Now(),
	}
	for _, m := range unitModels {
		if err, ok := failed[m]; ok {
			excluded[m] = err
			continue
		}
		if _, ok := descs[m]; !ok {
			excluded[m] = fmt.Errorf("%w: %s", forge.ErrUnknownModel, m)
			continue
		}
		ops, err := as.Operations(m)
		if err != nil {
			excluded[m] = err
			continue
		}
		schema.Models = append(schema.Models, m)
		schema.Operations = append(schema.Operations, ops...)
	}

	if len(excluded) > 0 {
		err := &forge.BuildError{Schema: name, Models: excluded}
		r.log.Warn().Err(err).Str("schema", name).Msg("schema built with exclusions")
		return schema, err
	}
	r.log.Info().Str("schema", name).Int("models", len(schema.Models)).Msg("schema built")
	return schema, nil
}
