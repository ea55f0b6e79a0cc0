// Package costing holds the pure cost-estimate arithmetic: derived totals,
// project rollups and rule-based suggestions.
package costing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

var hundred = decimal.NewFromInt(100)

// Recalc returns a copy of e with every derived field recomputed from the
// items. It never reads previously stored totals, so applying it twice
// yields the same estimate.
func Recalc(e domain.CostEstimate) domain.CostEstimate {
	out := e
	out.Items = make([]domain.CostItem, len(e.Items))

	subtotal := decimal.Zero
	for i, item := range e.Items {
		total := lineTotal(item)
		item.TotalCost = total.InexactFloat64()
		out.Items[i] = item
		subtotal = subtotal.Add(total)
	}

	tax := subtotal.Mul(decimal.NewFromFloat(e.TaxRate)).Div(hundred)
	out.Subtotal = subtotal.InexactFloat64()
	out.TaxAmount = tax.InexactFloat64()
	out.Total = subtotal.Add(tax).InexactFloat64()
	return out
}

func lineTotal(item domain.CostItem) decimal.Decimal {
	return decimal.NewFromFloat(item.UnitCost).Mul(decimal.NewFromFloat(item.Quantity))
}

// Validate checks the caller-controlled fields of an estimate.
func Validate(e domain.CostEstimate) error {
	const op = "validate estimate"
	if strings.TrimSpace(e.ProjectID) == "" {
		return domain.Validationf(op, "project id is required")
	}
	if !domain.IsFinite(e.TaxRate) || e.TaxRate < 0 || e.TaxRate > 100 {
		return domain.Validationf(op, "tax rate must be between 0 and 100, got %v", e.TaxRate)
	}
	if len(strings.TrimSpace(e.Currency)) != 3 {
		return domain.Validationf(op, "currency must be a 3-letter code, got %q", e.Currency)
	}
	for i, item := range e.Items {
		if err := ValidateItem(item); err != nil {
			return domain.WrapError(domain.ErrValidation, op, &itemError{index: i, err: err})
		}
	}
	totals := Recalc(e)
	for i, item := range totals.Items {
		if !domain.IsFinite(item.TotalCost) {
			return domain.Validationf(op, "item %d: total cost is out of range", i)
		}
	}
	if !domain.IsFinite(totals.Total) {
		return domain.Validationf(op, "estimate total is out of range")
	}
	return nil
}

func ValidateItem(item domain.CostItem) error {
	const op = "validate cost item"
	if strings.TrimSpace(item.Name) == "" {
		return domain.Validationf(op, "name is required")
	}
	if !item.Category.Valid() {
		return domain.Validationf(op, "unknown category %q", item.Category)
	}
	if !domain.IsFinite(item.UnitCost) || item.UnitCost < 0 {
		return domain.Validationf(op, "unit cost must be a non-negative number, got %v", item.UnitCost)
	}
	if !domain.IsFinite(item.Quantity) || item.Quantity < 0 {
		return domain.Validationf(op, "quantity must be a non-negative number, got %v", item.Quantity)
	}
	return nil
}

type itemError struct {
	index int
	err   error
}

func (e *itemError) Error() string {
	return "item " + strconv.Itoa(e.index) + ": " + e.err.Error()
}

func (e *itemError) Unwrap() error { return e.err }

// NormalizeCurrency upper-cases the code and falls back to def when empty.
func NormalizeCurrency(code, def string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return strings.ToUpper(def)
	}
	return code
}
