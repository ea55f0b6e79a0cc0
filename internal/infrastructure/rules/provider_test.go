package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rules, err := p.Rules(context.Background())
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if len(rules) != 6 {
		t.Fatalf("expected 6 default rules, got %d", len(rules))
	}
	if rules[0].MeasurementType != domain.MeasurementArea || rules[0].Category != domain.CategoryMaterial {
		t.Fatalf("unexpected first rule %+v", rules[0])
	}
	rules[0].Name = "mutated"
	again, _ := p.Rules(context.Background())
	if again[0].Name == "mutated" {
		t.Fatalf("Rules() must return a copy")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: Drywall
    measurement_type: area
    min_value: 1
    max_value: 100
    category: material
    unit_cost: 12
    unit: ft²
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rules, _ := p.Rules(context.Background())
	if len(rules) != 1 || rules[0].MaxValue == nil || *rules[0].MaxValue != 100 {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestParseRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "rules:\n  - name: x\n    measurment_type: area\n",
		"bad category":     "rules:\n  - name: x\n    measurement_type: area\n    category: permits\n    unit: m²\n",
		"unit mismatch":    "rules:\n  - name: x\n    measurement_type: area\n    category: labor\n    unit: m³\n",
		"negative cost":    "rules:\n  - name: x\n    measurement_type: distance\n    category: labor\n    unit_cost: -1\n    unit: m\n",
		"not a rule table": "- just\n- a list\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); !domain.IsKind(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
