package synth

import (
	"time"

	"github.com/apiforge/forge/model/field"
)

// Operator is the name of a filter predicate operator.
type Operator string

// Comparison and membership operators.
const (
	OpExact       Operator = "exact"
	OpIExact      Operator = "iexact"
	OpContains    Operator = "contains"
	OpIContains   Operator = "icontains"
	OpStartsWith  Operator = "startswith"
	OpIStartsWith Operator = "istartswith"
	OpEndsWith    Operator = "endswith"
	OpIEndsWith   Operator = "iendswith"
	OpGT          Operator = "gt"
	OpGTE         Operator = "gte"
	OpLT          Operator = "lt"
	OpLTE         Operator = "lte"
	OpRange       Operator = "range"
	OpIn          Operator = "in"
	OpIsNull      Operator = "isnull"
)

// Temporal component operators.
const (
	OpYear  Operator = "year"
	OpMonth Operator = "month"
	OpDay   Operator = "day"
	OpDate  Operator = "date"
	OpTime  Operator = "time"
)

// Relative time-bucket operators, resolved against the wall clock at query
// time.
const (
	OpToday     Operator = "today"
	OpYesterday Operator = "yesterday"
	OpThisWeek  Operator = "this_week"
	OpThisMonth Operator = "this_month"
	OpThisYear  Operator = "this_year"
)

// Logical combinators available at every filter-tree level.
const (
	CombinatorAnd = "AND"
	CombinatorOr  = "OR"
	CombinatorNot = "NOT"
)

// Combinators returns the logical combinators, identical at every level.
func Combinators() []string {
	return []string{CombinatorAnd, CombinatorOr, CombinatorNot}
}

var (
	textOperators = []Operator{
		OpExact, OpIExact, OpContains, OpIContains,
		OpStartsWith, OpIStartsWith, OpEndsWith, OpIEndsWith,
		OpIn, OpIsNull,
	}
	numericOperators = []Operator{
		OpExact, OpGT, OpGTE, OpLT, OpLTE, OpRange, OpIn, OpIsNull,
	}
	booleanOperators = []Operator{OpExact, OpIsNull}
	enumOperators    = []Operator{OpExact, OpIn, OpIsNull}
	binaryOperators  = []Operator{OpIsNull}
	dateOperators    = []Operator{
		OpExact, OpGT, OpGTE, OpLT, OpLTE, OpRange, OpIn, OpIsNull,
		OpYear, OpMonth, OpDay,
		OpToday, OpYesterday, OpThisWeek, OpThisMonth, OpThisYear,
	}
	datetimeOperators = append(append([]Operator{}, dateOperators...), OpDate, OpTime)
)

// OperatorsFor returns the operator set for a storage kind. The returned
// slice is shared; callers must not mutate it.
func OperatorsFor(kind field.Kind) []Operator {
	switch kind {
	case field.KindText:
		return textOperators
	case field.KindInteger, field.KindFloat, field.KindDecimal:
		return numericOperators
	case field.KindBoolean:
		return booleanOperators
	case field.KindEnum:
		return enumOperators
	case field.KindBinary:
		return binaryOperators
	case field.KindDate:
		return dateOperators
	case field.KindDateTime:
		return datetimeOperators
	default:
		return nil
	}
}

// RelativeOperator reports whether op is a relative time bucket.
func RelativeOperator(op Operator) bool {
	switch op {
	case OpToday, OpYesterday, OpThisWeek, OpThisMonth, OpThisYear:
		return true
	}
	return false
}

// TimeBucket resolves a relative operator into a half-open [start, end)
// interval against now. Weeks start on Monday.
func TimeBucket(op Operator, now time.Time) (start, end time.Time, ok bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch op {
	case OpToday:
		return midnight, midnight.AddDate(0, 0, 1), true
	case OpYesterday:
		return midnight.AddDate(0, 0, -1), midnight, true
	case OpThisWeek:
		weekday := int(now.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		start = midnight.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7), true
	case OpThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0), true
	case OpThisYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0), true
	}
	return time.Time{}, time.Time{}, false
}
