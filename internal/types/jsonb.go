package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*JSONMap)(nil)
	_ driver.Valuer = JSONMap(nil)
	_ sql.Scanner   = (*RuleActions)(nil)
	_ driver.Valuer = RuleActions(nil)
	_ sql.Scanner   = (*TriggerMetrics)(nil)
	_ driver.Valuer = TriggerMetrics(nil)
	_ sql.Scanner   = (*Recommendations)(nil)
	_ driver.Valuer = Recommendations(nil)
	// RuleConditions assertions are in conditions.go.
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
// Returns nil for nil interface values; otherwise marshals to JSON bytes.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// ---------------------------------------------------------------------------
// JSONMap
// ---------------------------------------------------------------------------

// JSONMap is a free-form JSONB object used for action parameters, where the
// shape depends on the action type (e.g. {"percentage": 20} for budget
// changes).
type JSONMap map[string]any

// Scan implements sql.Scanner for JSONMap.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements driver.Valuer for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return valueJSONB(m)
}

// ---------------------------------------------------------------------------
// RuleActions
// ---------------------------------------------------------------------------

// RuleActions is the ordered list of actions an automation rule proposes.
type RuleActions []RuleAction

// Scan implements sql.Scanner for RuleActions.
func (a *RuleActions) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	return scanJSONB(a, value)
}

// Value implements driver.Valuer for RuleActions.
func (a RuleActions) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return valueJSONB(a)
}

// ---------------------------------------------------------------------------
// TriggerMetrics
// ---------------------------------------------------------------------------

// TriggerMetrics records the per-condition evaluations that fired a rule,
// with the entity's actual values at evaluation time.
type TriggerMetrics []ConditionResult

// Scan implements sql.Scanner for TriggerMetrics.
func (t *TriggerMetrics) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	return scanJSONB(t, value)
}

// Value implements driver.Valuer for TriggerMetrics.
func (t TriggerMetrics) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return valueJSONB(t)
}

// ---------------------------------------------------------------------------
// Recommendations
// ---------------------------------------------------------------------------

// Recommendations is the derived text list attached to an account score.
type Recommendations []string

// Scan implements sql.Scanner for Recommendations.
func (r *Recommendations) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	return scanJSONB(r, value)
}

// Value implements driver.Valuer for Recommendations.
func (r Recommendations) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return valueJSONB(r)
}
