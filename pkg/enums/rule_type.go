package enums

import "fmt"

// RuleType decides whether a matching sync rule includes or excludes a record.
type RuleType string

const (
	RuleInclude RuleType = "include"
	RuleExclude RuleType = "exclude"
)

var validRuleTypes = []RuleType{
	RuleInclude,
	RuleExclude,
}

// String implements fmt.Stringer.
func (r RuleType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RuleType.
func (r RuleType) IsValid() bool {
	for _, candidate := range validRuleTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRuleType converts raw input into a RuleType.
func ParseRuleType(value string) (RuleType, error) {
	for _, candidate := range validRuleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule type %q", value)
}
