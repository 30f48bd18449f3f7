package rules

import (
	"strings"

	"github.com/google/uuid"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

// Decision is the rule engine's verdict for one record.
type Decision struct {
	Included  bool
	AutoQueue bool
	RuleID    *uuid.UUID
}

// Decide evaluates the rules against one record. Rules must already be in
// evaluation order; the first rule whose predicates all match wins. A record
// no rule matches is excluded.
func Decide(rules []models.SyncRule, record models.InventoryRecord) Decision {
	for i := range rules {
		rule := rules[i]
		if !rule.Active || !matches(rule, record) {
			continue
		}
		included := rule.Type == enums.RuleInclude
		return Decision{
			Included:  included,
			AutoQueue: included && rule.AutoQueue,
			RuleID:    &rule.ID,
		}
	}
	return Decision{}
}

// matches applies the rule's predicates conjunctively. A predicate left empty
// places no constraint, so a rule with no predicates matches every record.
func matches(rule models.SyncRule, record models.InventoryRecord) bool {
	if rule.GradedOnly && !record.Graded {
		return false
	}
	if len(rule.Categories) > 0 && !containsFold(rule.Categories, record.Category) {
		return false
	}
	if len(rule.BrandKeywords) > 0 && !keywordMatch(rule.BrandKeywords, record.Brand) {
		return false
	}
	if rule.MinPrice != nil && record.Price.LessThan(*rule.MinPrice) {
		return false
	}
	if rule.MaxPrice != nil && record.Price.GreaterThan(*rule.MaxPrice) {
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}

func keywordMatch(keywords []string, brand string) bool {
	lower := strings.ToLower(brand)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
