package prompt

import "github.com/vitalyst/enrich/pkg/types"

// systemNutritionist is shared by all built-in templates.
const systemNutritionist = "You are an expert nutritionist and researcher. " +
	"Enrich the provided knowledge-graph item with accurate, well-researched information. " +
	"Respond with a single JSON object containing exactly the requested fields and nothing else."

// Builtin returns the v1 template set for the three entity types.
// Loaded once at startup; callers publish them through Engine.Register.
func Builtin() []Template {
	return []Template{
		{
			EntityType: types.EntityNutrient,
			Version:    "v1",
			System:     systemNutritionist,
			Config: Config{
				Temperature:     0.7,
				MaxTokens:       1000,
				SchemaVersion:   "v1",
				ValidationRules: []string{"chemical_formula", "numeric_range", "source_url"},
			},
			Variants: map[types.Variant]string{
				types.VariantInitial: `Enrich the nutrient "{{.Name}}"{{if .Category}} (category: {{.Category}}){{end}}{{if .ChemicalFormula}} with chemical formula {{.ChemicalFormula}}{{end}}.
{{if .KnownSources}}Known sources: {{.KnownSources}}.
{{end}}Focus on:
- Biological functions
- Recommended intake
- Food sources
- Deficiency symptoms
- Interaction with other nutrients

Return a JSON object with the fields: description, biological_functions, recommended_intake, food_sources, deficiency_symptoms, interactions, chemical_formula, source_url, source_reliability.`,
				types.VariantFollowUp: `Earlier content for the nutrient "{{.Name}}" was incomplete. Fill in any missing detail, keeping existing facts unchanged.

Return the complete JSON object with the fields: description, biological_functions, recommended_intake, food_sources, deficiency_symptoms, interactions, chemical_formula, source_url, source_reliability.`,
				types.VariantRevision: `The previous content for the nutrient "{{.Name}}" failed validation. Correct the flagged problems and return the full corrected JSON object with the fields: description, biological_functions, recommended_intake, food_sources, deficiency_symptoms, interactions, chemical_formula, source_url, source_reliability.`,
			},
			Languages: map[string]map[types.Variant]string{
				"de": {
					types.VariantInitial: `Reichere den Nährstoff "{{.Name}}"{{if .Category}} (Kategorie: {{.Category}}){{end}} an.
Schwerpunkte:
- Biologische Funktionen
- Empfohlene Zufuhr
- Lebensmittelquellen
- Mangelerscheinungen
- Wechselwirkungen mit anderen Nährstoffen

Gib ein JSON-Objekt mit den Feldern zurück: description, biological_functions, recommended_intake, food_sources, deficiency_symptoms, interactions, chemical_formula, source_url, source_reliability.`,
				},
			},
		},
		{
			EntityType: types.EntityFood,
			Version:    "v1",
			System:     systemNutritionist,
			Config: Config{
				Temperature:     0.7,
				MaxTokens:       1000,
				SchemaVersion:   "v1",
				ValidationRules: []string{"numeric_range", "source_url"},
			},
			Variants: map[types.Variant]string{
				types.VariantInitial: `Enrich the food item "{{.Name}}"{{if .Category}} (category: {{.Category}}){{end}}{{if .Origin}} from {{.Origin}}{{end}}.
Focus on:
- Nutritional composition
- Seasonal availability
- Environmental impact
- Production methods
- Health benefits and risks

Return a JSON object with the fields: description, nutritional_composition, seasonal_availability, environmental_impact, production_methods, health_benefits, source_url, source_reliability.`,
				types.VariantFollowUp: `Earlier content for the food item "{{.Name}}" was incomplete. Fill in any missing detail, keeping existing facts unchanged.

Return the complete JSON object with the fields: description, nutritional_composition, seasonal_availability, environmental_impact, production_methods, health_benefits, source_url, source_reliability.`,
				types.VariantRevision: `The previous content for the food item "{{.Name}}" failed validation. Correct the flagged problems and return the full corrected JSON object with the fields: description, nutritional_composition, seasonal_availability, environmental_impact, production_methods, health_benefits, source_url, source_reliability.`,
			},
		},
		{
			EntityType: types.EntityContent,
			Version:    "v1",
			System:     systemNutritionist,
			Config: Config{
				Temperature:     0.7,
				MaxTokens:       1000,
				SchemaVersion:   "v1",
				ValidationRules: []string{"numeric_range"},
			},
			Variants: map[types.Variant]string{
				types.VariantInitial: `Describe the content relationship between the food "{{.FoodName}}" and the nutrient "{{.NutrientName}}"{{if .Amount}} (reported amount: {{.Amount}} {{.Unit}}){{end}}.
Focus on:
- Quantity validation
- Bioavailability
- Processing effects
- Storage impact
- Seasonal variations

Return a JSON object with the fields: description, quantity, unit, bioavailability, processing_effects, storage_impact, seasonal_variations.`,
				types.VariantFollowUp: `Earlier content for the relationship between "{{.FoodName}}" and "{{.NutrientName}}" was incomplete. Fill in any missing detail.

Return the complete JSON object with the fields: description, quantity, unit, bioavailability, processing_effects, storage_impact, seasonal_variations.`,
				types.VariantRevision: `The previous content for the relationship between "{{.FoodName}}" and "{{.NutrientName}}" failed validation. Correct the flagged problems and return the full corrected JSON object with the fields: description, quantity, unit, bioavailability, processing_effects, storage_impact, seasonal_variations.`,
			},
		},
	}
}
