package search

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpattn/contentql/internal/db"
	"github.com/rpattn/contentql/internal/domain"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02",
}

// ParseDate is the canonical date parser for filter operands, cursor keys and
// stored values. Results are normalised to UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

var allowedOperators = map[ColumnType][]domain.FilterOperator{
	ColumnID: {
		domain.OperatorEq, domain.OperatorNe, domain.OperatorIn, domain.OperatorNotIn,
		domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
	ColumnString: {
		domain.OperatorEq, domain.OperatorNe, domain.OperatorGt, domain.OperatorGte,
		domain.OperatorLt, domain.OperatorLte, domain.OperatorIn, domain.OperatorNotIn,
		domain.OperatorContains, domain.OperatorNotContains, domain.OperatorStartsWith,
		domain.OperatorEndsWith, domain.OperatorBetween, domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
	ColumnNumber: {
		domain.OperatorEq, domain.OperatorNe, domain.OperatorGt, domain.OperatorGte,
		domain.OperatorLt, domain.OperatorLte, domain.OperatorIn, domain.OperatorNotIn,
		domain.OperatorBetween, domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
	ColumnBoolean: {
		domain.OperatorEq, domain.OperatorNe, domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
	ColumnDate: {
		domain.OperatorEq, domain.OperatorNe, domain.OperatorGt, domain.OperatorGte,
		domain.OperatorLt, domain.OperatorLte, domain.OperatorBetween,
		domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
	ColumnArray: {
		domain.OperatorIn, domain.OperatorNotIn, domain.OperatorContains, domain.OperatorNotContains,
		domain.OperatorIsNull, domain.OperatorIsNotNull,
	},
}

// OperatorAllowed reports whether op may be applied to a column of type t.
// date_* operators are accepted on date columns only.
func OperatorAllowed(t ColumnType, op domain.FilterOperator) bool {
	if !op.Valid() {
		return false
	}
	if op.IsDateOperator() && t != ColumnDate {
		return false
	}
	base := op.Base()
	for _, allowed := range allowedOperators[t] {
		if allowed == base {
			return true
		}
	}
	return false
}

// boundFilter is a filter whose operand has been checked and coerced for its column.
type boundFilter struct {
	column   Column
	op       domain.FilterOperator
	operand  any
	operands []any
}

// filterIssue locates a rejected filter field.
type filterIssue struct {
	field   string
	message string
}

func bindFilter(col Column, f domain.Filter) (boundFilter, *filterIssue) {
	if !f.Operator.Valid() {
		return boundFilter{}, &filterIssue{"operator", fmt.Sprintf("unknown operator %q", f.Operator)}
	}
	if !OperatorAllowed(col.Type, f.Operator) {
		return boundFilter{}, &filterIssue{"operator", fmt.Sprintf("operator %q is not supported for %s property %q", f.Operator, col.Type, col.Property)}
	}

	bf := boundFilter{column: col, op: f.Operator.Base()}
	switch bf.op {
	case domain.OperatorIsNull, domain.OperatorIsNotNull:
		if f.Value != nil {
			return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q does not take a value", f.Operator)}
		}
		return bf, nil

	case domain.OperatorIn, domain.OperatorNotIn, domain.OperatorBetween:
		list, ok := asList(f.Value)
		if !ok {
			return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q requires an array value", f.Operator)}
		}
		if bf.op == domain.OperatorBetween && len(list) != 2 {
			return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q requires exactly two values", f.Operator)}
		}
		if len(list) == 0 {
			return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q requires a non-empty array", f.Operator)}
		}
		bf.operands = make([]any, len(list))
		for i, item := range list {
			v, err := coerceOperand(col, item)
			if err != nil {
				return boundFilter{}, &filterIssue{fmt.Sprintf("value[%d]", i), err.Error()}
			}
			bf.operands[i] = v
		}
		return bf, nil
	}

	if f.Value == nil {
		return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q requires a value", f.Operator)}
	}
	if _, isList := asList(f.Value); isList {
		return boundFilter{}, &filterIssue{"value", fmt.Sprintf("operator %q requires a single value", f.Operator)}
	}
	v, err := coerceOperand(col, f.Value)
	if err != nil {
		return boundFilter{}, &filterIssue{"value", err.Error()}
	}
	bf.operand = v
	return bf, nil
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// coerceOperand converts a wire value into the Go type bound for col. Array
// columns hold text elements.
func coerceOperand(col Column, value any) (any, error) {
	switch col.Type {
	case ColumnID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected a UUID, got %q", v)
			}
			return id, nil
		}
		return nil, fmt.Errorf("expected a UUID string")

	case ColumnString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string")

	case ColumnArray:
		switch v := value.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}
		return nil, fmt.Errorf("expected a string element")

	case ColumnNumber:
		return coerceNumber(value)

	case ColumnBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected a boolean")

	case ColumnDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			t, err := ParseDate(v)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return nil, fmt.Errorf("expected a date string")
	}
	return nil, fmt.Errorf("unsupported column type %q", col.Type)
}

func coerceNumber(value any) (any, error) {
	var f float64
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		parsed, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", v.String())
		}
		f = parsed
	case float64:
		f = v
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", v)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("expected a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("expected a finite number")
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern lowercases and escapes s; substring matching is case-insensitive.
func likePattern(prefix, s, suffix string) string {
	return prefix + likeEscaper.Replace(strings.ToLower(s)) + suffix
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// compileFilter renders a bound filter as a predicate fragment.
func compileFilter(d db.Dialect, bf boundFilter) fragment {
	expr := bf.column.Expr
	if bf.column.Type == ColumnArray {
		return compileArrayFilter(d, bf)
	}

	switch bf.op {
	case domain.OperatorEq:
		return fragment{expr + " = ?", []any{bf.operand}}
	case domain.OperatorNe:
		return fragment{expr + " <> ?", []any{bf.operand}}
	case domain.OperatorGt:
		return fragment{expr + " > ?", []any{bf.operand}}
	case domain.OperatorGte:
		return fragment{expr + " >= ?", []any{bf.operand}}
	case domain.OperatorLt:
		return fragment{expr + " < ?", []any{bf.operand}}
	case domain.OperatorLte:
		return fragment{expr + " <= ?", []any{bf.operand}}
	case domain.OperatorIn:
		return fragment{expr + " IN (" + placeholders(len(bf.operands)) + ")", bf.operands}
	case domain.OperatorNotIn:
		return fragment{expr + " NOT IN (" + placeholders(len(bf.operands)) + ")", bf.operands}
	case domain.OperatorBetween:
		return fragment{expr + " BETWEEN ? AND ?", bf.operands}
	case domain.OperatorContains:
		return fragment{"LOWER(" + expr + ") LIKE ? ESCAPE '\\'", []any{likePattern("%", bf.operand.(string), "%")}}
	case domain.OperatorNotContains:
		return fragment{"LOWER(" + expr + ") NOT LIKE ? ESCAPE '\\'", []any{likePattern("%", bf.operand.(string), "%")}}
	case domain.OperatorStartsWith:
		return fragment{"LOWER(" + expr + ") LIKE ? ESCAPE '\\'", []any{likePattern("", bf.operand.(string), "%")}}
	case domain.OperatorEndsWith:
		return fragment{"LOWER(" + expr + ") LIKE ? ESCAPE '\\'", []any{likePattern("%", bf.operand.(string), "")}}
	case domain.OperatorIsNull:
		return fragment{expr + " IS NULL", nil}
	case domain.OperatorIsNotNull:
		return fragment{expr + " IS NOT NULL", nil}
	}
	// unreachable for bound filters
	return fragment{"1 = 0", nil}
}

// compileArrayFilter tests element membership of a JSON array column.
func compileArrayFilter(d db.Dialect, bf boundFilter) fragment {
	expr := bf.column.Expr
	from, value := d.ArrayElements(expr)
	exists := func(cond string) string {
		return "EXISTS (SELECT 1 FROM " + from + " WHERE " + cond + ")"
	}

	switch bf.op {
	case domain.OperatorContains:
		return fragment{exists(value+" = ?"), []any{bf.operand}}
	case domain.OperatorNotContains:
		return fragment{"NOT " + exists(value+" = ?"), []any{bf.operand}}
	case domain.OperatorIn:
		return fragment{exists(value+" IN ("+placeholders(len(bf.operands))+")"), bf.operands}
	case domain.OperatorNotIn:
		return fragment{"NOT " + exists(value+" IN ("+placeholders(len(bf.operands))+")"), bf.operands}
	case domain.OperatorIsNull:
		return fragment{expr + " IS NULL", nil}
	case domain.OperatorIsNotNull:
		return fragment{expr + " IS NOT NULL", nil}
	}
	return fragment{"1 = 0", nil}
}
