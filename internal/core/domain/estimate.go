package domain

import "time"

type CostCategory string

const (
	CategoryMaterial  CostCategory = "material"
	CategoryLabor     CostCategory = "labor"
	CategoryEquipment CostCategory = "equipment"
	CategoryOverhead  CostCategory = "overhead"
	CategoryOther     CostCategory = "other"
)

func CostCategories() []CostCategory {
	return []CostCategory{CategoryMaterial, CategoryLabor, CategoryEquipment, CategoryOverhead, CategoryOther}
}

func (c CostCategory) Valid() bool {
	for _, known := range CostCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// CostItem is one priced line. TotalCost is derived and rewritten by recalc.
type CostItem struct {
	Name          string       `json:"name"`
	Category      CostCategory `json:"category"`
	UnitCost      float64      `json:"unitCost"`
	Unit          string       `json:"unit"`
	Quantity      float64      `json:"quantity"`
	TotalCost     float64      `json:"totalCost"`
	MeasurementID string       `json:"measurementId,omitempty"`
}

// CostEstimate aggregates cost items. Subtotal, TaxAmount and Total are
// derived from Items.
type CostEstimate struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	MapID          *string    `json:"mapId,omitempty"`
	Name           string     `json:"name,omitempty"`
	MeasurementIDs []string   `json:"measurementIds"`
	Items          []CostItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	TaxRate        float64    `json:"taxRate"`
	TaxAmount      float64    `json:"taxAmount"`
	Total          float64    `json:"total"`
	Currency       string     `json:"currency"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// EstimatePatch carries a partial update; nil fields are left untouched.
type EstimatePatch struct {
	Name           *string     `json:"name,omitempty"`
	MapID          *string     `json:"mapId,omitempty"`
	MeasurementIDs *[]string   `json:"measurementIds,omitempty"`
	Items          *[]CostItem `json:"items,omitempty"`
	TaxRate        *float64    `json:"taxRate,omitempty"`
	Currency       *string     `json:"currency,omitempty"`
}

type ProjectTotals struct {
	ProjectID      string                   `json:"projectId"`
	TotalEstimates int                      `json:"totalEstimates"`
	GrandTotal     float64                  `json:"grandTotal"`
	ByCategory     map[CostCategory]float64 `json:"byCategory"`
}

// CostRule suggests a cost item for measurements of Type whose canonical
// value falls in [MinValue, MaxValue). A nil MaxValue is unbounded.
type CostRule struct {
	Name            string          `json:"name" yaml:"name"`
	MeasurementType MeasurementType `json:"measurementType" yaml:"measurement_type"`
	MinValue        float64         `json:"minValue" yaml:"min_value"`
	MaxValue        *float64        `json:"maxValue,omitempty" yaml:"max_value,omitempty"`
	Category        CostCategory    `json:"category" yaml:"category"`
	UnitCost        float64         `json:"unitCost" yaml:"unit_cost"`
	Unit            string          `json:"unit" yaml:"unit"`
	QuantityFactor  float64         `json:"quantityFactor,omitempty" yaml:"quantity_factor,omitempty"`
}

// SuggestRequest selects measurements of a project and a rule table to
// turn them into cost items. Empty Rules means the configured table.
type SuggestRequest struct {
	ProjectID      string     `json:"-"`
	MapID          string     `json:"mapId,omitempty"`
	MeasurementIDs []string   `json:"measurementIds,omitempty"`
	Rules          []CostRule `json:"rules,omitempty"`
	Name           string     `json:"name,omitempty"`
	TaxRate        float64    `json:"taxRate"`
	Currency       string     `json:"currency,omitempty"`
	Persist        bool       `json:"persist,omitempty"`
}

// Suggestion is a recalculated estimate built from rule output. It is only
// stored when Persisted is true.
type Suggestion struct {
	Estimate              CostEstimate `json:"estimate"`
	MeasurementsEvaluated int          `json:"measurementsEvaluated"`
	Persisted             bool         `json:"persisted"`
}
