package domain

// FilterOperator enumerates the comparison operators accepted in a Filter.
type FilterOperator string

const (
	OperatorEq          FilterOperator = "eq"
	OperatorNe          FilterOperator = "ne"
	OperatorGt          FilterOperator = "gt"
	OperatorGte         FilterOperator = "gte"
	OperatorLt          FilterOperator = "lt"
	OperatorLte         FilterOperator = "lte"
	OperatorIn          FilterOperator = "in"
	OperatorNotIn       FilterOperator = "not_in"
	OperatorContains    FilterOperator = "contains"
	OperatorNotContains FilterOperator = "not_contains"
	OperatorStartsWith  FilterOperator = "starts_with"
	OperatorEndsWith    FilterOperator = "ends_with"
	OperatorBetween     FilterOperator = "between"
	OperatorIsNull      FilterOperator = "is_null"
	OperatorIsNotNull   FilterOperator = "is_not_null"
	OperatorDateEq      FilterOperator = "date_eq"
	OperatorDateNe      FilterOperator = "date_ne"
	OperatorDateGt      FilterOperator = "date_gt"
	OperatorDateGte     FilterOperator = "date_gte"
	OperatorDateLt      FilterOperator = "date_lt"
	OperatorDateLte     FilterOperator = "date_lte"
	OperatorDateBetween FilterOperator = "date_between"
)

// GroupOperator combines the filters inside one FilterGroup.
type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// Filter is a single (property, operator, value) triple. A nil Value means the
// value was omitted.
type Filter struct {
	Property string         `json:"property"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// FilterGroup holds filters joined by Operator. Groups are ANDed together.
type FilterGroup struct {
	Filters  []Filter      `json:"filters"`
	Operator GroupOperator `json:"operator"`
}

// IsDateOperator reports whether the operator coerces its operand as a date.
func (o FilterOperator) IsDateOperator() bool {
	switch o {
	case OperatorDateEq, OperatorDateNe, OperatorDateGt, OperatorDateGte,
		OperatorDateLt, OperatorDateLte, OperatorDateBetween:
		return true
	}
	return false
}

// Base maps a date_* operator to its plain counterpart.
func (o FilterOperator) Base() FilterOperator {
	switch o {
	case OperatorDateEq:
		return OperatorEq
	case OperatorDateNe:
		return OperatorNe
	case OperatorDateGt:
		return OperatorGt
	case OperatorDateGte:
		return OperatorGte
	case OperatorDateLt:
		return OperatorLt
	case OperatorDateLte:
		return OperatorLte
	case OperatorDateBetween:
		return OperatorBetween
	}
	return o
}

// Valid reports whether the operator is part of the DSL.
func (o FilterOperator) Valid() bool {
	switch o.Base() {
	case OperatorEq, OperatorNe, OperatorGt, OperatorGte, OperatorLt, OperatorLte,
		OperatorIn, OperatorNotIn, OperatorContains, OperatorNotContains,
		OperatorStartsWith, OperatorEndsWith, OperatorBetween,
		OperatorIsNull, OperatorIsNotNull:
		return true
	}
	return false
}
