package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model/field"
)

// Default and ceiling for relationship-traversal depth in filter trees.
const (
	DefaultMaxNestedDepth = 3
	MaxNestedDepthCeiling = 5
)

// FilterConfig bounds filter-tree synthesis. It is the resolved, per-model
// configuration handed in explicitly by the registry.
type FilterConfig struct {
	// MaxNestedDepth bounds the dotted-segment count of any generated field
	// path. Values outside [1, MaxNestedDepthCeiling] are clamped.
	MaxNestedDepth int

	// ExcludeField withholds individual fields from filter synthesis. Nil
	// keeps every field.
	ExcludeField func(model, field string) bool

	// Logger receives pruning diagnostics. Zero value is silent.
	Logger zerolog.Logger
}

func (c FilterConfig) depth() int {
	switch {
	case c.MaxNestedDepth <= 0:
		return DefaultMaxNestedDepth
	case c.MaxNestedDepth > MaxNestedDepthCeiling:
		return MaxNestedDepthCeiling
	default:
		return c.MaxNestedDepth
	}
}

// FilterField is one leaf of a filter tree: a dotted field path and the
// operator subset its storage kind supports.
type FilterField struct {
	Path      string
	Kind      field.Kind
	Operators []Operator
}

// Keys returns the selectable filter keys of the leaf: the bare path for
// exact matching plus one path__operator key per operator.
func (f *FilterField) Keys() []string {
	keys := make([]string, 0, len(f.Operators)+1)
	keys = append(keys, f.Path)
	for _, op := range f.Operators {
		keys = append(keys, f.Path+"__"+string(op))
	}
	return keys
}

// FilterDescriptor is one node of the synthesized filter tree. The root
// node carries the model's quick-search allow-list and custom hooks; child
// nodes describe filterable relationships, pruned by depth and by the
// cycle guard.
type FilterDescriptor struct {
	// Model holds the model this node filters.
	Model string
	// Relationship holds the relationship name this node was reached by.
	// Empty on the root.
	Relationship string
	// Path holds the dotted path prefix from the root. Empty on the root.
	Path string
	// Fields holds the scalar leaves of this node.
	Fields []*FilterField
	// Children holds the filterable relationship subtrees in declaration
	// order.
	Children []*FilterDescriptor
	// Combinators holds the logical combinators accepted at this level.
	// Each accepts the same FilterDescriptor shape, enabling recursive
	// boolean composition.
	Combinators []string
	// QuickSearch holds the flattened leaf paths eligible for free-text
	// search. Root only.
	QuickSearch []string
	// Hooks holds the custom filter hook names merged at the root.
	Hooks []string
}

// Child returns the subtree for the given relationship name.
func (d *FilterDescriptor) Child(relationship string) (*FilterDescriptor, bool) {
	for _, c := range d.Children {
		if c.Relationship == relationship {
			return c, true
		}
	}
	return nil, false
}

// Leaves returns every field leaf in the tree, depth first.
func (d *FilterDescriptor) Leaves() []*FilterField {
	out := append([]*FilterField(nil), d.Fields...)
	for _, c := range d.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// FilterTree synthesizes the filter descriptor tree rooted at model. The
// traversal is bounded by cfg.MaxNestedDepth and guarded against cycles
// with a visited-model set threaded through the recursion; pruned
// relationships remain navigable in output types but produce no filter
// subtree. A custom hook whose name collides with a generated filter key is
// a FilterConfigurationError, fatal for this model's filter tree only.
func (s *Synthesizer) FilterTree(model string, cfg FilterConfig) (*FilterDescriptor, error) {
	root, ok := s.descs[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	maxDepth := cfg.depth()
	visited := map[string]bool{model: true}
	tree := s.buildNode(root, "", "", visited, false, maxDepth, cfg)

	if err := s.attachQuickSearch(root, tree, maxDepth); err != nil {
		return nil, err
	}
	if err := attachHooks(root, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// buildNode builds one tree node. visited is copied per branch so sibling
// branches own independent guard sets; selfUnrolled marks that the
// root-level self-reference exemption was already spent on this path.
func (s *Synthesizer) buildNode(d *introspect.ModelDescriptor, relationship, prefix string, visited map[string]bool, selfUnrolled bool, maxDepth int, cfg FilterConfig) *FilterDescriptor {
	node := &FilterDescriptor{
		Model:        d.Name,
		Relationship: relationship,
		Path:         prefix,
		Combinators:  Combinators(),
	}
	for _, f := range d.Fields {
		if cfg.ExcludeField != nil && cfg.ExcludeField(d.Name, f.Name) {
			continue
		}
		node.Fields = append(node.Fields, &FilterField{
			Path:      joinPath(prefix, f.Name),
			Kind:      f.Kind,
			Operators: OperatorsFor(f.Kind),
		})
	}
	// prefix segment count of this node's leaves.
	depth := segments(prefix) + 1
	for _, r := range d.Relationships {
		if depth+1 > maxDepth {
			cfg.Logger.Debug().Str("model", d.Name).Str("relationship", r.Name).
				Msg("filter subtree pruned: depth limit")
			continue
		}
		target, ok := s.descs[r.Target]
		if !ok {
			// Unresolvable targets were already rejected at extraction; a
			// missing sibling descriptor means the target model failed its
			// own build. Prune, keep the rest of the tree usable.
			cfg.Logger.Warn().Str("model", d.Name).Str("relationship", r.Name).
				Str("target", r.Target).Msg("filter subtree pruned: target descriptor missing")
			continue
		}
		childVisited := copyVisited(visited)
		childUnrolled := selfUnrolled
		switch {
		case !visited[r.Target]:
			childVisited[r.Target] = true
		case r.Target == d.Name && prefix == "" && !selfUnrolled:
			// A root-level self-reference is granted exactly one further
			// level; after that the normal cycle rule reapplies.
			childUnrolled = true
		default:
			cfg.Logger.Debug().Str("model", d.Name).Str("relationship", r.Name).
				Msg("filter subtree pruned: cycle guard")
			continue
		}
		child := s.buildNode(target, r.Name, joinPath(prefix, r.Name), childVisited, childUnrolled, maxDepth, cfg)
		node.Children = append(node.Children, child)
	}
	return node
}

// attachQuickSearch validates the owner-supplied allow-list and attaches it
// to the root. Every listed path must resolve to a text leaf present in the
// generated tree.
func (s *Synthesizer) attachQuickSearch(d *introspect.ModelDescriptor, tree *FilterDescriptor, maxDepth int) error {
	for _, path := range d.QuickSearch {
		leaf, ok := findLeaf(tree, path)
		if !ok {
			return forge.NewFilterConfigurationError(d.Name, path,
				fmt.Errorf("quick-search path does not resolve within depth %d", maxDepth))
		}
		if leaf.Kind != field.KindText {
			return forge.NewFilterConfigurationError(d.Name, path,
				fmt.Errorf("quick-search path resolves to %s, want text", leaf.Kind))
		}
		tree.QuickSearch = append(tree.QuickSearch, path)
	}
	return nil
}

// attachHooks merges the owner-supplied hooks into the root, rejecting name
// collisions with generated filter keys.
func attachHooks(d *introspect.ModelDescriptor, tree *FilterDescriptor) error {
	generated := make(map[string]bool)
	for _, leaf := range tree.Fields {
		for _, key := range leaf.Keys() {
			generated[key] = true
		}
	}
	seen := make(map[string]bool)
	for _, hook := range d.FilterHooks {
		if hook.Name == "" {
			return forge.NewFilterConfigurationError(d.Name, "", errors.New("filter hook name cannot be empty"))
		}
		if generated[hook.Name] {
			return forge.NewFilterConfigurationError(d.Name, hook.Name,
				errors.New("filter hook collides with a generated field operator"))
		}
		if seen[hook.Name] {
			return forge.NewFilterConfigurationError(d.Name, hook.Name,
				errors.New("duplicate filter hook"))
		}
		seen[hook.Name] = true
		tree.Hooks = append(tree.Hooks, hook.Name)
	}
	return nil
}

// findLeaf resolves a dotted path to a leaf of the tree.
func findLeaf(node *FilterDescriptor, path string) (*FilterField, bool) {
	for _, f := range node.Fields {
		if f.Path == path {
			return f, true
		}
	}
	for _, c := range node.Children {
		if path == c.Path || strings.HasPrefix(path, c.Path+".") {
			return findLeaf(c, path)
		}
	}
	return nil, false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func segments(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

func copyVisited(visited map[string]bool) map[string]bool {
	out := make(map[string]bool, len(visited)+1)
	for k, v := range visited {
		out[k] = v
	}
	return out
}
