// Package assemble turns synthesized descriptors into executable operations:
// single, list and paginated queries, transactional create/update/delete,
// batched bulk mutations, and method-derived mutations. Every mutation
// result is reported through the standardized envelope; the package never
// lets a collaborator error escape raw.
package assemble

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/synth"
)

// Defaults for the bulk-mutation bounds.
const (
	DefaultBatchSize  = 100
	DefaultMaxObjects = 1000
)

// Assembler builds and executes the operations of a model set. It is safe
// for concurrent use once constructed: the descriptor inputs are immutable
// and all per-request state lives on the stack.
type Assembler struct {
	synth   *synth.Synthesizer
	storage forge.Storage
	auth    forge.Authorizer
	log     zerolog.Logger

	filterCfg     synth.FilterConfig
	resolveFilter func(model string) synth.FilterConfig
	maxObjects    int
	batchSize     int
	now           func() time.Time

	mu    sync.Mutex
	trees map[string]*synth.FilterDescriptor
}

// filterTree memoizes filter-tree synthesis per model; built trees are
// immutable and shared across requests.
func (as *Assembler) filterTree(model string) (*synth.FilterDescriptor, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if tree, ok := as.trees[model]; ok {
		return tree, nil
	}
	cfg := as.filterCfg
	if as.resolveFilter != nil {
		cfg = as.resolveFilter(model)
	}
	tree, err := as.synth.FilterTree(model, cfg)
	if err != nil {
		return nil, err
	}
	as.trees[model] = tree
	return tree, nil
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithAuthorizer sets the authorization collaborator. Defaults to AllowAll.
func WithAuthorizer(a forge.Authorizer) Option {
	return func(as *Assembler) {
		as.auth = a
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(as *Assembler) {
		as.log = l
		as.filterCfg.Logger = l
	}
}

// WithFilterConfig sets the filter-synthesis bounds used by list queries.
func WithFilterConfig(cfg synth.FilterConfig) Option {
	return func(as *Assembler) {
		as.filterCfg = cfg
	}
}

// WithFilterResolver sets a per-model filter-configuration source, taking
// precedence over the static config. The registry uses this to apply
// model- and field-tier settings.
func WithFilterResolver(resolve func(model string) synth.FilterConfig) Option {
	return func(as *Assembler) {
		as.resolveFilter = resolve
	}
}

// WithMaxObjects sets the bulk-input ceiling.
func WithMaxObjects(n int) Option {
	return func(as *Assembler) {
		if n > 0 {
			as.maxObjects = n
		}
	}
}

// WithBatchSize sets the bulk batch size.
func WithBatchSize(n int) Option {
	return func(as *Assembler) {
		if n > 0 {
			as.batchSize = n
		}
	}
}

// WithClock overrides the wall clock consulted by relative time filters.
func WithClock(now func() time.Time) Option {
	return func(as *Assembler) {
		as.now = now
	}
}

// New returns an Assembler over the synthesizer's model set, executing
// against storage.
func New(s *synth.Synthesizer, storage forge.Storage, opts ...Option) *Assembler {
	as := &Assembler{
		synth:      s,
		storage:    storage,
		auth:       forge.AllowAll,
		log:        zerolog.Nop(),
		maxObjects: DefaultMaxObjects,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
		trees:      make(map[string]*synth.FilterDescriptor),
	}
	for _, opt := range opts {
		opt(as)
	}
	return as
}

// OperationDescriptor describes one exposed operation of a model.
type OperationDescriptor struct {
	// Name holds the exposed operation name, e.g. "posts" or "createPost".
	Name string
	// Kind is the operation kind.
	Kind forge.OpKind
	// Model holds the owning model name.
	Model string
	// Method holds the model method name for method-derived mutations.
	Method string
	// Input holds the input type for create/update variants.
	Input *synth.TypeDescriptor
	// Output holds the output type.
	Output *synth.TypeDescriptor
	// Filter holds the filter tree accepted by list variants.
	Filter *synth.FilterDescriptor
	// Params holds the input parameters of a method-derived mutation. The
	// owning instance is always resolved by primary key and is not listed.
	Params []method.Param
}

// Operations assembles the full operation set of one model: three query
// shapes, three single mutations, three bulk mutations, and one mutation
// per eligible method.
func (as *Assembler) Operations(model string) ([]*OperationDescriptor, error) {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	output, err := as.synth.Type(model, synth.ModeOutput)
	if err != nil {
		return nil, err
	}
	createInput, err := as.synth.Type(model, synth.ModeCreate)
	if err != nil {
		return nil, err
	}
	updateInput, err := as.synth.Type(model, synth.ModeUpdate)
	if err != nil {
		return nil, err
	}
	filter, err := as.filterTree(model)
	if err != nil {
		return nil, err
	}

	pascal := synth.TypeName(model)
	plural := synth.PluralPascal(model)
	ops := []*OperationDescriptor{
		{Name: synth.Singular(model), Kind: forge.OpGet, Model: model, Output: output},
		{Name: synth.Plural(model), Kind: forge.OpList, Model: model, Output: output, Filter: filter},
		{Name: synth.Plural(model) + "Paginated", Kind: forge.OpPaginatedList, Model: model, Output: output, Filter: filter},
		{Name: "create" + pascal, Kind: forge.OpCreate, Model: model, Input: createInput, Output: output},
		{Name: "update" + pascal, Kind: forge.OpUpdate, Model: model, Input: updateInput, Output: output},
		{Name: "delete" + pascal, Kind: forge.OpDelete, Model: model, Output: output},
		{Name: "bulkCreate" + plural, Kind: forge.OpBulkCreate, Model: model, Input: createInput, Output: output},
		{Name: "bulkUpdate" + plural, Kind: forge.OpBulkUpdate, Model: model, Input: updateInput, Output: output},
		{Name: "bulkDelete" + plural, Kind: forge.OpBulkDelete, Model: model, Output: output},
	}
	for _, m := range d.EligibleMethods() {
		ops = append(ops, &OperationDescriptor{
			Name:   synth.MethodMutationName(model, m.Name),
			Kind:   forge.OpMethodMutation,
			Model:  model,
			Method: m.Name,
			Output: output,
			Params: m.Params,
		})
	}
	return ops, nil
}
