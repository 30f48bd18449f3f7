package rules

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slabworks/slabsync-backend/pkg/db/models"
	dbtypes "github.com/slabworks/slabsync-backend/pkg/db/types"
	"github.com/slabworks/slabsync-backend/pkg/enums"
)

func rule(name string, ruleType enums.RuleType, priority int) models.SyncRule {
	return models.SyncRule{
		ID:       uuid.New(),
		Name:     name,
		Type:     ruleType,
		Priority: priority,
		Active:   true,
	}
}

func record(category, brand string, price string, graded bool) models.InventoryRecord {
	return models.InventoryRecord{
		ID:       uuid.New(),
		SKU:      "sku-1",
		Category: category,
		Brand:    brand,
		Price:    decimal.RequireFromString(price),
		Graded:   graded,
	}
}

func TestDecideNoRulesExcludes(t *testing.T) {
	decision := Decide(nil, record("Cards", "Topps", "10.00", false))
	if decision.Included {
		t.Fatal("no matching rule must exclude")
	}
	if decision.RuleID != nil {
		t.Fatal("no rule id expected")
	}
}

func TestDecideEmptyPredicatesMatchEverything(t *testing.T) {
	include := rule("include-all", enums.RuleInclude, 0)
	decision := Decide([]models.SyncRule{include}, record("Anything", "Any", "1.00", false))
	if !decision.Included {
		t.Fatal("empty predicate set must match every record")
	}
	if decision.RuleID == nil || *decision.RuleID != include.ID {
		t.Fatal("winning rule id must be reported")
	}
}

func TestDecidePriorityOrderFirstMatchWins(t *testing.T) {
	excludeComics := rule("exclude-comics", enums.RuleExclude, 10)
	excludeComics.Categories = dbtypes.StringList{"Comics"}
	includeAll := rule("include-all", enums.RuleInclude, 5)
	ordered := []models.SyncRule{excludeComics, includeAll}

	comic := record("Comics", "Marvel", "25.00", false)
	if decision := Decide(ordered, comic); decision.Included {
		t.Fatal("comic must hit the higher-priority exclude first")
	}

	card := record("Cards", "Topps", "25.00", false)
	decision := Decide(ordered, card)
	if !decision.Included {
		t.Fatal("non-comic must fall through to include-all")
	}
	if *decision.RuleID != includeAll.ID {
		t.Fatal("wrong winning rule")
	}
}

func TestDecidePredicatesAreConjunctive(t *testing.T) {
	r := rule("graded-topps", enums.RuleInclude, 0)
	r.GradedOnly = true
	r.BrandKeywords = dbtypes.StringList{"topps"}
	ordered := []models.SyncRule{r}

	if Decide(ordered, record("Cards", "Topps", "10.00", false)).Included {
		t.Fatal("ungraded record must fail the graded_only predicate")
	}
	if Decide(ordered, record("Cards", "Panini", "10.00", true)).Included {
		t.Fatal("wrong brand must fail the keyword predicate")
	}
	if !Decide(ordered, record("Cards", "Topps Chrome", "10.00", true)).Included {
		t.Fatal("keyword substring match expected")
	}
}

func TestDecidePriceBounds(t *testing.T) {
	min := decimal.RequireFromString("10.00")
	max := decimal.RequireFromString("100.00")
	r := rule("mid-range", enums.RuleInclude, 0)
	r.MinPrice = &min
	r.MaxPrice = &max
	ordered := []models.SyncRule{r}

	if Decide(ordered, record("Cards", "Topps", "9.99", false)).Included {
		t.Fatal("below min must not match")
	}
	if Decide(ordered, record("Cards", "Topps", "100.01", false)).Included {
		t.Fatal("above max must not match")
	}
	if !Decide(ordered, record("Cards", "Topps", "10.00", false)).Included {
		t.Fatal("bounds are inclusive")
	}
	if !Decide(ordered, record("Cards", "Topps", "100.00", false)).Included {
		t.Fatal("bounds are inclusive")
	}
}

func TestDecideAutoQueueOnlyOnInclude(t *testing.T) {
	exclude := rule("exclude", enums.RuleExclude, 10)
	exclude.AutoQueue = true
	decision := Decide([]models.SyncRule{exclude}, record("Cards", "Topps", "10.00", false))
	if decision.AutoQueue {
		t.Fatal("exclude rules never auto-queue")
	}

	include := rule("include", enums.RuleInclude, 10)
	include.AutoQueue = true
	decision = Decide([]models.SyncRule{include}, record("Cards", "Topps", "10.00", false))
	if !decision.AutoQueue {
		t.Fatal("auto_queue include rule must request queueing")
	}
}

func TestDecideInactiveRuleSkipped(t *testing.T) {
	inactive := rule("inactive-exclude", enums.RuleExclude, 10)
	inactive.Active = false
	includeAll := rule("include-all", enums.RuleInclude, 5)

	decision := Decide([]models.SyncRule{inactive, includeAll}, record("Cards", "Topps", "10.00", false))
	if !decision.Included {
		t.Fatal("inactive rule must be skipped")
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	excludeComics := rule("exclude-comics", enums.RuleExclude, 10)
	excludeComics.Categories = dbtypes.StringList{"Comics"}
	includeAll := rule("include-all", enums.RuleInclude, 5)
	ordered := []models.SyncRule{excludeComics, includeAll}
	target := record("Comics", "Marvel", "25.00", false)

	first := Decide(ordered, target)
	for i := 0; i < 10; i++ {
		if next := Decide(ordered, target); next.Included != first.Included {
			t.Fatal("same rules and record must always decide the same way")
		}
	}
}
