package costing

import (
	"fmt"
	"strings"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/geometry"
)

// ValidateRules rejects rule tables the aggregator could not apply.
func ValidateRules(rules []domain.CostRule) error {
	const op = "validate cost rules"
	for i, rule := range rules {
		switch {
		case strings.TrimSpace(rule.Name) == "":
			return domain.Validationf(op, "rule %d: name is required", i)
		case !rule.MeasurementType.Valid():
			return domain.Validationf(op, "rule %q: unknown measurement type %q", rule.Name, rule.MeasurementType)
		case !rule.Category.Valid():
			return domain.Validationf(op, "rule %q: unknown category %q", rule.Name, rule.Category)
		case !domain.IsFinite(rule.UnitCost) || rule.UnitCost < 0:
			return domain.Validationf(op, "rule %q: unit cost must be non-negative", rule.Name)
		case rule.MaxValue != nil && *rule.MaxValue <= rule.MinValue:
			return domain.Validationf(op, "rule %q: max value must exceed min value", rule.Name)
		case rule.QuantityFactor < 0:
			return domain.Validationf(op, "rule %q: quantity factor must be non-negative", rule.Name)
		}
		if _, err := geometry.ConvertCanonical(rule.MeasurementType, 1, rule.Unit); err != nil {
			return domain.WrapError(domain.ErrValidation, op, fmt.Errorf("rule %q: %w", rule.Name, err))
		}
	}
	return nil
}

// Matches reports whether a canonical measurement value falls in the rule's range.
func Matches(rule domain.CostRule, m domain.Measurement) bool {
	if rule.MeasurementType != m.Type {
		return false
	}
	if m.Value < rule.MinValue {
		return false
	}
	return rule.MaxValue == nil || m.Value < *rule.MaxValue
}

// SuggestItems evaluates the rule table against each measurement, in
// measurement order then rule order. The output is ordinary cost items.
func SuggestItems(rules []domain.CostRule, measurements []domain.Measurement) ([]domain.CostItem, error) {
	items := make([]domain.CostItem, 0)
	for _, m := range measurements {
		for _, rule := range rules {
			if !Matches(rule, m) {
				continue
			}
			quantity, err := geometry.ConvertCanonical(m.Type, m.Value, rule.Unit)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			factor := rule.QuantityFactor
			if factor == 0 {
				factor = 1
			}
			items = append(items, domain.CostItem{
				Name:          itemName(rule, m),
				Category:      rule.Category,
				UnitCost:      rule.UnitCost,
				Unit:          unitLabel(m.Type, rule.Unit),
				Quantity:      quantity * factor,
				MeasurementID: m.ID,
			})
		}
	}
	return items, nil
}

func itemName(rule domain.CostRule, m domain.Measurement) string {
	if m.Label == "" {
		return rule.Name
	}
	return rule.Name + " (" + m.Label + ")"
}

func unitLabel(t domain.MeasurementType, unit string) string {
	if t == domain.MeasurementAngle {
		return "°"
	}
	base := strings.TrimRight(strings.TrimSpace(unit), "²³^23")
	if base == "" {
		base = string(domain.UnitMeter)
	}
	switch t {
	case domain.MeasurementArea:
		return base + "²"
	case domain.MeasurementVolume:
		return base + "³"
	default:
		return base
	}
}
