package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/synth"
)

// QuickSearchKey is the reserved filter key carrying the free-text search
// term. It is OR-combined over the model's quick-search allow-list.
const QuickSearchKey = "quick_search"

// compilePredicate converts a caller-supplied filter argument map into a
// runtime predicate, validated against the synthesized filter tree. Keys
// are either logical combinators, the quick-search term, a custom hook name
// (root level only), or field keys of the form "path" / "path__operator".
func (as *Assembler) compilePredicate(tree *synth.FilterDescriptor, hooks []model.FilterHook, args map[string]any) (*forge.Predicate, error) {
	if len(args) == 0 {
		return nil, nil
	}
	hookByName := make(map[string]model.FilterHook, len(hooks))
	for _, h := range hooks {
		if lo.Contains(tree.Hooks, h.Name) {
			hookByName[h.Name] = h
		}
	}

	var clauses []*forge.Predicate
	for _, key := range sortedKeys(args) {
		value := args[key]
		switch key {
		case synth.CombinatorAnd, synth.CombinatorOr:
			children, err := as.compileBranchList(tree, hooks, key, value)
			if err != nil {
				return nil, err
			}
			if key == synth.CombinatorAnd {
				clauses = append(clauses, &forge.Predicate{And: children})
			} else {
				clauses = append(clauses, &forge.Predicate{Or: children})
			}
		case synth.CombinatorNot:
			inner, ok := value.(map[string]any)
			if !ok {
				return nil, forge.NewValidationError(key, fmt.Errorf("expects a filter object, got %T", value))
			}
			child, err := as.compilePredicate(tree, hooks, inner)
			if err != nil {
				return nil, err
			}
			if child != nil {
				clauses = append(clauses, &forge.Predicate{Not: child})
			}
		case QuickSearchKey:
			p, err := quickSearchClause(tree, value)
			if err != nil {
				return nil, err
			}
			if p != nil {
				clauses = append(clauses, p)
			}
		default:
			if hook, ok := hookByName[key]; ok {
				if p := hook.Apply(value); p != nil {
					clauses = append(clauses, p)
				}
				continue
			}
			p, err := as.fieldClause(tree, key, value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, p)
		}
	}
	return conjoin(clauses), nil
}

// compileBranchList compiles the list argument of an AND/OR combinator.
func (as *Assembler) compileBranchList(tree *synth.FilterDescriptor, hooks []model.FilterHook, key string, value any) ([]*forge.Predicate, error) {
	branches, err := branchMaps(value)
	if err != nil {
		return nil, forge.NewValidationError(key, err)
	}
	var out []*forge.Predicate
	for _, branch := range branches {
		p, err := as.compilePredicate(tree, hooks, branch)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// fieldClause compiles one "path" / "path__operator" key. Relative time
// operators expand into half-open range comparisons against the assembler's
// clock.
func (as *Assembler) fieldClause(tree *synth.FilterDescriptor, key string, value any) (*forge.Predicate, error) {
	path, op := splitFilterKey(key)
	leaf, ok := findTreeLeaf(tree, path)
	if !ok {
		return nil, forge.NewValidationError(key, fmt.Errorf("unknown filter field %q", path))
	}
	if op == "" {
		return &forge.Predicate{Path: path, Op: string(synth.OpExact), Value: value}, nil
	}
	if !lo.Contains(leaf.Operators, synth.Operator(op)) {
		return nil, forge.NewValidationError(key, fmt.Errorf("operator %q not supported on %s", op, path))
	}
	if synth.RelativeOperator(synth.Operator(op)) {
		start, end, _ := synth.TimeBucket(synth.Operator(op), as.now())
		return &forge.Predicate{And: []*forge.Predicate{
			{Path: path, Op: string(synth.OpGTE), Value: start},
			{Path: path, Op: string(synth.OpLT), Value: end},
		}}, nil
	}
	return &forge.Predicate{Path: path, Op: op, Value: value}, nil
}

// quickSearchClause OR-combines a case-insensitive containment test over
// the allow-listed paths. An empty term or an empty allow-list yields no
// clause.
func quickSearchClause(tree *synth.FilterDescriptor, value any) (*forge.Predicate, error) {
	term, ok := value.(string)
	if !ok {
		return nil, forge.NewValidationError(QuickSearchKey, fmt.Errorf("expects a string, got %T", value))
	}
	if term == "" || len(tree.QuickSearch) == 0 {
		return nil, nil
	}
	var or []*forge.Predicate
	for _, path := range tree.QuickSearch {
		or = append(or, &forge.Predicate{Path: path, Op: string(synth.OpIContains), Value: term})
	}
	if len(or) == 1 {
		return or[0], nil
	}
	return &forge.Predicate{Or: or}, nil
}

// splitFilterKey separates the dotted path from the operator suffix. A key
// without a "__" suffix is a bare exact match.
func splitFilterKey(key string) (path, op string) {
	if i := strings.LastIndex(key, "__"); i > 0 {
		return key[:i], key[i+2:]
	}
	return key, ""
}

func findTreeLeaf(tree *synth.FilterDescriptor, path string) (*synth.FilterField, bool) {
	for _, leaf := range tree.Leaves() {
		if leaf.Path == path {
			return leaf, true
		}
	}
	return nil, false
}


// branchMaps normalizes a combinator list argument.
func branchMaps(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expects a list of filter objects, got element %T", item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expects a list of filter objects, got %T", value)
	}
}

// conjoin folds clauses into a single predicate.
func conjoin(clauses []*forge.Predicate) *forge.Predicate {
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return &forge.Predicate{And: clauses}
	}
}

// sortedKeys fixes the compilation order so error reporting and generated
// predicates are deterministic.
func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
