package memstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/synth"
)

// eval decides whether a record matches a predicate. Dotted paths traverse
// relationships through the stored <rel>_id / <rel>_ids references; a leaf
// over a to-many path matches when any related record matches.
func (s *Store) eval(model string, record forge.Record, p *forge.Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch {
	case len(p.And) > 0:
		for _, child := range p.And {
			ok, err := s.eval(model, record, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(p.Or) > 0:
		for _, child := range p.Or {
			ok, err := s.eval(model, record, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case p.Not != nil:
		ok, err := s.eval(model, record, p.Not)
		return !ok, err
	}

	values, err := s.resolvePath(model, record, p.Path)
	if err != nil {
		return false, err
	}
	if p.Op == string(synth.OpIsNull) {
		want, _ := p.Value.(bool)
		null := len(values) == 0 || (len(values) == 1 && values[0] == nil)
		return null == want, nil
	}
	for _, v := range values {
		ok, err := compare(v, p.Op, p.Value)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// resolvePath walks a dotted path from model, fanning out over to-many
// relationships. It returns the candidate leaf values.
func (s *Store) resolvePath(model string, record forge.Record, path string) ([]any, error) {
	segments := strings.Split(path, ".")
	return s.resolveSegments(model, record, segments)
}

func (s *Store) resolveSegments(model string, record forge.Record, segments []string) ([]any, error) {
	head, rest := segments[0], segments[1:]
	d, ok := s.descs[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	if len(rest) == 0 {
		if _, ok := d.Field(head); !ok {
			return nil, fmt.Errorf("unknown field %s.%s", model, head)
		}
		return []any{record[head]}, nil
	}
	r, ok := d.Relationship(head)
	if !ok {
		return nil, fmt.Errorf("unknown relationship %s.%s", model, head)
	}
	var related []forge.Record
	if r.Rel.ToMany() {
		related = s.relatedMany(model, record, r.Name, r.Target, d.PrimaryKey().Name)
	} else if id := record[synth.RefField(r.Name)]; id != nil {
		if target, exists := s.tables[r.Target].records[canonical(id)]; exists {
			related = append(related, target)
		}
	}
	var out []any
	for _, target := range related {
		values, err := s.resolveSegments(r.Target, target, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, values...)
	}
	return out, nil
}

// relatedMany resolves a to-many side: a forward side stores a <rel>_ids
// list, a reverse side scans the target's back-references.
func (s *Store) relatedMany(model string, record forge.Record, relName, target, pkName string) []forge.Record {
	if raw, ok := record[synth.RefListField(relName)].([]any); ok {
		var out []forge.Record
		for _, id := range raw {
			if rec, exists := s.tables[target].records[canonical(id)]; exists {
				out = append(out, rec)
			}
		}
		return out
	}
	// Reverse side: find target records whose forward reference points back
	// at this record.
	var out []forge.Record
	selfID := canonical(record[pkName])
	td, ok := s.descs[target]
	if !ok {
		return nil
	}
	for _, back := range td.Relationships {
		if back.Target != model || back.Reverse {
			continue
		}
		refKey := synth.RefField(back.Name)
		listKey := synth.RefListField(back.Name)
		for _, key := range s.tables[target].order {
			rec := s.tables[target].records[key]
			if id, present := rec[refKey]; present && id != nil && canonical(id) == selfID {
				out = append(out, rec)
				continue
			}
			if ids, present := rec[listKey].([]any); present {
				for _, id := range ids {
					if canonical(id) == selfID {
						out = append(out, rec)
						break
					}
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// compare applies one leaf operator.
func compare(actual any, op string, expected any) (bool, error) {
	switch synth.Operator(op) {
	case synth.OpExact:
		return equalValues(actual, expected), nil
	case synth.OpIExact:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.EqualFold(a, b), nil
	case synth.OpContains:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.Contains(a, b), nil
	case synth.OpIContains:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.Contains(strings.ToLower(a), strings.ToLower(b)), nil
	case synth.OpStartsWith:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.HasPrefix(a, b), nil
	case synth.OpIStartsWith:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.HasPrefix(strings.ToLower(a), strings.ToLower(b)), nil
	case synth.OpEndsWith:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.HasSuffix(a, b), nil
	case synth.OpIEndsWith:
		a, b, ok := stringPair(actual, expected)
		return ok && strings.HasSuffix(strings.ToLower(a), strings.ToLower(b)), nil
	case synth.OpGT, synth.OpGTE, synth.OpLT, synth.OpLTE:
		c, ok := order(actual, expected)
		if !ok {
			return false, nil
		}
		switch synth.Operator(op) {
		case synth.OpGT:
			return c > 0, nil
		case synth.OpGTE:
			return c >= 0, nil
		case synth.OpLT:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case synth.OpRange:
		bounds, ok := expected.([]any)
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("range expects a two-element list")
		}
		lo, lok := order(actual, bounds[0])
		hi, hok := order(actual, bounds[1])
		return lok && hok && lo >= 0 && hi <= 0, nil
	case synth.OpIn:
		items, ok := expected.([]any)
		if !ok {
			return false, fmt.Errorf("in expects a list")
		}
		for _, item := range items {
			if equalValues(actual, item) {
				return true, nil
			}
		}
		return false, nil
	case synth.OpYear, synth.OpMonth, synth.OpDay:
		t, ok := actual.(time.Time)
		if !ok {
			return false, nil
		}
		want, ok := toInt(expected)
		if !ok {
			return false, fmt.Errorf("%s expects an integer", op)
		}
		switch synth.Operator(op) {
		case synth.OpYear:
			return t.Year() == int(want), nil
		case synth.OpMonth:
			return int(t.Month()) == int(want), nil
		default:
			return t.Day() == int(want), nil
		}
	case synth.OpDate:
		t, ok := actual.(time.Time)
		e, eok := expected.(time.Time)
		if !ok || !eok {
			return false, nil
		}
		ty, tm, td := t.Date()
		ey, em, ed := e.Date()
		return ty == ey && tm == em && td == ed, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// equalValues compares loosely across numeric widths, since records round-
// trip through untyped maps.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		return bok && at.Equal(bt)
	}
	return a == b
}

// order compares two values, returning -1/0/1 and whether they are
// comparable.
func order(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if at, aok := a.(time.Time); aok {
		bt, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func stringPair(a, b any) (string, string, bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	return as, bs, aok && bok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// sortRecords orders records by the given terms. Paths are limited to root
// fields; relationship ordering is not supported by this backend.
func sortRecords(records []forge.Record, terms []forge.OrderTerm) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, term := range terms {
			c, ok := order(records[i][term.Path], records[j][term.Path])
			if !ok || c == 0 {
				continue
			}
			if term.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
