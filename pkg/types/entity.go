// Package types defines the shared request, response, and event types for
// the enrichment core.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// EntityType identifies the category of knowledge-graph item being
// enriched. The set is closed; adding a type means adding a context
// variant below and registering templates and a schema for it.
type EntityType string

const (
	EntityNutrient EntityType = "nutrient"
	EntityFood     EntityType = "food"
	EntityContent  EntityType = "content"
)

// ParseEntityType parses a string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case EntityNutrient:
		return EntityNutrient, nil
	case EntityFood:
		return EntityFood, nil
	case EntityContent:
		return EntityContent, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

// EntityContext is the closed union of per-entity-type template inputs.
// Implementations carry the explicit required fields for their variant;
// free-form maps never cross this boundary.
type EntityContext interface {
	// EntityType returns the variant tag.
	EntityType() EntityType

	// TemplateData returns the substitution values for prompt rendering.
	TemplateData() map[string]string

	// Validate checks that the required fields of the variant are set.
	Validate() error
}

// NutrientContext describes a nutrient node awaiting enrichment.
type NutrientContext struct {
	Name            string   `json:"name"`
	ChemicalFormula string   `json:"chemical_formula,omitempty"`
	Category        string   `json:"category,omitempty"`
	KnownSources    []string `json:"known_sources,omitempty"`
}

func (c NutrientContext) EntityType() EntityType { return EntityNutrient }

func (c NutrientContext) TemplateData() map[string]string {
	return map[string]string{
		"Name":            c.Name,
		"ChemicalFormula": c.ChemicalFormula,
		"Category":        c.Category,
		"KnownSources":    strings.Join(c.KnownSources, ", "),
	}
}

func (c NutrientContext) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("nutrient context: name is required")
	}
	return nil
}

// FoodContext describes a food node awaiting enrichment.
type FoodContext struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Season   string `json:"season,omitempty"`
}

func (c FoodContext) EntityType() EntityType { return EntityFood }

func (c FoodContext) TemplateData() map[string]string {
	return map[string]string{
		"Name":     c.Name,
		"Category": c.Category,
		"Origin":   c.Origin,
		"Season":   c.Season,
	}
}

func (c FoodContext) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("food context: name is required")
	}
	return nil
}

// ContentContext describes a food-contains-nutrient relationship.
type ContentContext struct {
	FoodName     string  `json:"food_name"`
	NutrientName string  `json:"nutrient_name"`
	Amount       float64 `json:"amount,omitempty"`
	Unit         string  `json:"unit,omitempty"`
}

func (c ContentContext) EntityType() EntityType { return EntityContent }

func (c ContentContext) TemplateData() map[string]string {
	amount := ""
	if c.Amount > 0 {
		amount = fmt.Sprintf("%g", c.Amount)
	}
	return map[string]string{
		"FoodName":     c.FoodName,
		"NutrientName": c.NutrientName,
		"Amount":       amount,
		"Unit":         c.Unit,
	}
}

func (c ContentContext) Validate() error {
	if c.FoodName == "" || c.NutrientName == "" {
		return fmt.Errorf("content context: food_name and nutrient_name are required")
	}
	return nil
}

// ContextHash returns a stable digest of the template data, used as part
// of the render cache key. Keys are sorted so identical contexts always
// hash identically.
func ContextHash(ctx EntityContext) uint64 {
	data := ctx.TemplateData()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, k := range keys {
		for _, b := range []byte(k + "=" + data[k] + ";") {
			h ^= uint64(b)
			h *= 1099511628211 // FNV prime
		}
	}
	return h
}
