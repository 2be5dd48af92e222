package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RuleCondition defines a threshold comparison against a snapshot metric.
type RuleCondition struct {
	Metric   string            `json:"metric"`
	Operator ConditionOperator `json:"operator"`
	Value    float64           `json:"value"`
}

// Evaluate compares the given actual metric value against the condition
// threshold. Unknown operators evaluate to false.
func (c RuleCondition) Evaluate(actual float64) bool {
	switch c.Operator {
	case OpGreaterThan:
		return actual > c.Value
	case OpGreaterThanEq:
		return actual >= c.Value
	case OpLessThan:
		return actual < c.Value
	case OpLessThanEq:
		return actual <= c.Value
	case OpEqual:
		return actual == c.Value
	case OpNotEqual:
		return actual != c.Value
	default:
		return false
	}
}

// RuleConditions is a slice of RuleCondition that implements sql.Scanner and
// driver.Valuer for JSONB column storage.
type RuleConditions []RuleCondition

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (c *RuleConditions) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("conditions: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, c)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (c RuleConditions) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}
