package backend

import (
	"fmt"
	"strings"
	"time"
)

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
)

// Condition compares one column against a value.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Condition

// Eq matches rows where column equals value.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

// Gte matches rows where column is greater than or equal to value.
func Gte(column string, value any) Condition {
	return Condition{Column: column, Op: OpGte, Value: value}
}

// Where builds a filter from the given conditions.
func Where(conds ...Condition) Filter {
	return Filter(conds)
}

// String renders the filter for log lines.
func (f Filter) String() string {
	if len(f) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value))
	}
	return strings.Join(parts, " AND ")
}

// Matches reports whether row satisfies every condition of the filter.
// Values are compared as times, numbers or their string form, in that order.
func (f Filter) Matches(row Row) bool {
	for _, c := range f {
		v, ok := row[c.Column]
		if !ok {
			return false
		}
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			if cmp != 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare returns -1, 0 or 1. The bool is false when the values cannot be
// ordered against each other.
func compare(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			}
			return 0, true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
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
	}
	return 0, false
}
