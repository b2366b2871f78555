package domain

// ConditionOperator is the comparison applied between a context field and a
// rule-author-supplied value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
)

// BlockOperator specifies how the conditions inside a block combine.
type BlockOperator string

const (
	BlockOperatorAND BlockOperator = "AND"
	BlockOperatorOR  BlockOperator = "OR"
)

// Condition is a single field/operator/value comparison evaluated against
// the flattened trigger context.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// ConditionBlock groups conditions under an AND/OR combinator. A nil block
// or an empty rules slice is vacuously true.
type ConditionBlock struct {
	Operator BlockOperator `json:"operator,omitempty"`
	Rules    []Condition   `json:"rules,omitempty"`
}
