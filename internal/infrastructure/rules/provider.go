// Package rules loads the cost rule table used to turn measurements into
// suggested cost items.
package rules

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/plan-takeoff/internal/core/costing"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

//go:embed default_rules.yaml
var defaultRules []byte

type document struct {
	Rules []domain.CostRule `yaml:"rules"`
}

// Provider serves a rule table loaded once at startup.
type Provider struct {
	rules []domain.CostRule
}

// Load reads the rule table from path, or the embedded defaults when path
// is empty.
func Load(path string) (*Provider, error) {
	raw := defaultRules
	source := "embedded default"
	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read cost rules %s: %w", path, err)
		}
		raw, source = b, path
	}
	rules, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("load cost rules from %s: %w", source, err)
	}
	return &Provider{rules: rules}, nil
}

// Parse decodes and validates a YAML rule table. Unknown keys are rejected.
func Parse(raw []byte) ([]domain.CostRule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "parse cost rules", err)
	}
	if err := costing.ValidateRules(doc.Rules); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

func (p *Provider) Rules(_ context.Context) ([]domain.CostRule, error) {
	out := make([]domain.CostRule, len(p.rules))
	copy(out, p.rules)
	return out, nil
}
