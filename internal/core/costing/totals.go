package costing

import (
	"github.com/shopspring/decimal"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

// ProjectTotals sums estimate totals and per-category item totals. Every
// category is present in the result, zero when nothing contributed.
func ProjectTotals(projectID string, estimates []domain.CostEstimate) domain.ProjectTotals {
	grand := decimal.Zero
	buckets := make(map[domain.CostCategory]decimal.Decimal, len(domain.CostCategories()))
	for _, category := range domain.CostCategories() {
		buckets[category] = decimal.Zero
	}

	for _, raw := range estimates {
		e := Recalc(raw)
		grand = grand.Add(decimal.NewFromFloat(e.Total))
		for _, item := range e.Items {
			category := item.Category
			if !category.Valid() {
				category = domain.CategoryOther
			}
			buckets[category] = buckets[category].Add(decimal.NewFromFloat(item.TotalCost))
		}
	}

	out := domain.ProjectTotals{
		ProjectID:      projectID,
		TotalEstimates: len(estimates),
		GrandTotal:     grand.InexactFloat64(),
		ByCategory:     make(map[domain.CostCategory]float64, len(buckets)),
	}
	for category, sum := range buckets {
		out.ByCategory[category] = sum.InexactFloat64()
	}
	return out
}
