// Package validate implements schema-driven validation of AI-generated
// content. Schemas are versioned in lockstep with prompt templates and
// immutable once published.
package validate

import (
	"fmt"
	"regexp"

	"github.com/vitalyst/enrich/pkg/types"
)

// Rule is the structural contract for one response field.
type Rule struct {
	Field     string
	Required  bool
	MinLength int
	MaxLength int
	Numeric   bool
	Min       *float64
	Max       *float64
	Pattern   *regexp.Regexp
	Enum      []string
}

// Schema is the per-(entityType, version) structural contract plus the
// named semantic validators it references.
type Schema struct {
	EntityType types.EntityType
	Version    string
	Rules      []Rule
	Semantic   []string
}

// RequiredFields returns the names of all required fields in rule order.
func (s *Schema) RequiredFields() []string {
	var out []string
	for _, r := range s.Rules {
		if r.Required {
			out = append(out, r.Field)
		}
	}
	return out
}

// FieldNames returns every field the schema knows about, in rule order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		out[i] = r.Field
	}
	return out
}

// Rule returns the rule for a field name.
func (s *Schema) Rule(field string) (Rule, bool) {
	for _, r := range s.Rules {
		if r.Field == field {
			return r, true
		}
	}
	return Rule{}, false
}

func floatPtr(v float64) *float64 { return &v }

var (
	chemicalFormulaPattern = regexp.MustCompile(`^([A-Z][a-z]?\d*)+$`)
	urlPattern             = regexp.MustCompile(`^https?://[^\s]+$`)
)

// BuiltinSchemas returns the v1 validation schemas for the three entity
// types, matching the fields requested by the v1 prompt templates.
func BuiltinSchemas() []Schema {
	return []Schema{
		{
			EntityType: types.EntityNutrient,
			Version:    "v1",
			Rules: []Rule{
				{Field: "description", Required: true, MinLength: 100, MaxLength: 2000},
				{Field: "biological_functions", Required: true, MinLength: 50, MaxLength: 2000},
				{Field: "recommended_intake", Required: true, MinLength: 10, MaxLength: 500},
				{Field: "food_sources", Required: true, MinLength: 10, MaxLength: 1000},
				{Field: "deficiency_symptoms", MinLength: 10, MaxLength: 1000},
				{Field: "interactions", MaxLength: 1000},
				// Pattern checks for chemical_formula and source_url run
				// as semantic validators, not structural rules.
				{Field: "chemical_formula"},
				{Field: "source_url"},
				{Field: "source_reliability", Numeric: true, Min: floatPtr(0), Max: floatPtr(1)},
			},
			Semantic: []string{"chemical_formula", "numeric_range", "source_url"},
		},
		{
			EntityType: types.EntityFood,
			Version:    "v1",
			Rules: []Rule{
				{Field: "description", Required: true, MinLength: 100, MaxLength: 2000},
				{Field: "nutritional_composition", Required: true, MinLength: 50, MaxLength: 2000},
				{Field: "seasonal_availability", MinLength: 5, MaxLength: 500},
				{Field: "environmental_impact", MinLength: 10, MaxLength: 1000},
				{Field: "production_methods", MinLength: 10, MaxLength: 1000},
				{Field: "health_benefits", Required: true, MinLength: 30, MaxLength: 1500},
				{Field: "source_url"},
				{Field: "source_reliability", Numeric: true, Min: floatPtr(0), Max: floatPtr(1)},
			},
			Semantic: []string{"numeric_range", "source_url"},
		},
		{
			EntityType: types.EntityContent,
			Version:    "v1",
			Rules: []Rule{
				{Field: "description", Required: true, MinLength: 50, MaxLength: 1500},
				{Field: "quantity", Required: true, Numeric: true, Min: floatPtr(0), Max: floatPtr(1e6)},
				{Field: "unit", Required: true, Enum: []string{"µg", "mg", "g", "IU", "kcal"}},
				{Field: "bioavailability", MinLength: 10, MaxLength: 1000},
				{Field: "processing_effects", MinLength: 10, MaxLength: 1000},
				{Field: "storage_impact", MinLength: 10, MaxLength: 1000},
				{Field: "seasonal_variations", MinLength: 10, MaxLength: 1000},
			},
			Semantic: []string{"numeric_range"},
		},
	}
}

// validateSchema sanity-checks a schema before registration.
func validateSchema(s Schema) error {
	if s.EntityType == "" || s.Version == "" {
		return fmt.Errorf("schema: entity type and version are required")
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("schema %s/%s: at least one rule is required", s.EntityType, s.Version)
	}
	seen := make(map[string]bool, len(s.Rules))
	for _, r := range s.Rules {
		if r.Field == "" {
			return fmt.Errorf("schema %s/%s: rule with empty field name", s.EntityType, s.Version)
		}
		if seen[r.Field] {
			return fmt.Errorf("schema %s/%s: duplicate rule for field %q", s.EntityType, s.Version, r.Field)
		}
		seen[r.Field] = true
	}
	return nil
}
