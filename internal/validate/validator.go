package validate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vitalyst/enrich/pkg/types"
)

// ErrSchemaNotFound is returned when no schema exists for the requested
// (entityType, version) pair.
var ErrSchemaNotFound = errors.New("validation schema not found")

// SemanticFunc is a named semantic check run after structural
// validation. It receives the full response and returns any errors.
type SemanticFunc func(response map[string]any) []types.ValidationError

// Validator owns the schema catalog and the named semantic checks.
// Read-mostly after startup.
type Validator struct {
	mu       sync.RWMutex
	schemas  map[types.EntityType]map[string]*Schema
	latest   map[types.EntityType]string
	semantic map[string]SemanticFunc
}

// NewValidator creates a validator with the builtin semantic checks
// registered and an empty schema catalog.
func NewValidator() *Validator {
	v := &Validator{
		schemas:  make(map[types.EntityType]map[string]*Schema),
		latest:   make(map[types.EntityType]string),
		semantic: make(map[string]SemanticFunc),
	}
	v.semantic["chemical_formula"] = semanticChemicalFormula
	v.semantic["numeric_range"] = semanticNumericRange
	v.semantic["source_url"] = semanticSourceURL
	return v
}

// Register publishes a schema version. Versions are immutable; a second
// registration of the same (entityType, version) fails.
func (v *Validator) Register(s Schema) error {
	if err := validateSchema(s); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	byVersion, ok := v.schemas[s.EntityType]
	if !ok {
		byVersion = make(map[string]*Schema)
		v.schemas[s.EntityType] = byVersion
	}
	if _, exists := byVersion[s.Version]; exists {
		return fmt.Errorf("schema %s/%s already published", s.EntityType, s.Version)
	}
	sc := s
	byVersion[s.Version] = &sc
	v.latest[s.EntityType] = s.Version
	return nil
}

// RegisterSemantic installs a named semantic check.
func (v *Validator) RegisterSemantic(name string, fn SemanticFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.semantic[name] = fn
}

// Schema resolves the schema for (entityType, version), latest when
// version is empty.
func (v *Validator) Schema(entity types.EntityType, version string) (*Schema, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.schemaLocked(entity, version)
}

func (v *Validator) schemaLocked(entity types.EntityType, version string) (*Schema, error) {
	byVersion, ok := v.schemas[entity]
	if !ok || len(byVersion) == 0 {
		return nil, fmt.Errorf("%w: entity type %s", ErrSchemaNotFound, entity)
	}
	if version == "" {
		version = v.latest[entity]
	}
	s, ok := byVersion[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s version %s", ErrSchemaNotFound, entity, version)
	}
	return s, nil
}

// Validate checks a parsed response against the bound schema and
// produces the completeness/quality/confidence triple. It fails closed:
// any missing required field or hard-constraint violation makes the
// result invalid regardless of the scores.
func (v *Validator) Validate(entity types.EntityType, response map[string]any, version string) (*types.ValidationResult, error) {
	v.mu.RLock()
	schema, err := v.schemaLocked(entity, version)
	if err != nil {
		v.mu.RUnlock()
		return nil, err
	}
	semantic := make([]SemanticFunc, 0, len(schema.Semantic))
	for _, name := range schema.Semantic {
		if fn, ok := v.semantic[name]; ok {
			semantic = append(semantic, fn)
		}
	}
	v.mu.RUnlock()

	result := &types.ValidationResult{IsValid: true}

	requiredTotal := 0
	requiredOK := 0

	for _, rule := range schema.Rules {
		if rule.Required {
			requiredTotal++
		}

		raw, present := response[rule.Field]
		if !present || isEmptyValue(raw) {
			if rule.Required {
				result.Errors = append(result.Errors, types.ValidationError{
					Field:    rule.Field,
					Message:  "required field is missing",
					Severity: types.SeverityMajor,
				})
				result.Suggestions = append(result.Suggestions,
					fmt.Sprintf("provide a value for %q", rule.Field))
			}
			continue
		}

		fieldErrs := checkRule(rule, raw)
		result.Errors = append(result.Errors, fieldErrs...)
		if rule.Required && len(fieldErrs) == 0 {
			requiredOK++
		}
	}

	// Unknown fields are tolerated but flagged, since they usually mean
	// the model drifted from the requested shape.
	for field := range response {
		if _, known := schema.Rule(field); !known {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("unexpected field %q not in schema", field))
		}
	}

	for _, fn := range semantic {
		result.Errors = append(result.Errors, fn(response)...)
	}

	completeness := 1.0
	if requiredTotal > 0 {
		completeness = float64(requiredOK) / float64(requiredTotal)
	}

	var totalSeverity float64
	for _, e := range result.Errors {
		totalSeverity += e.Severity
	}
	confidence := 1.0 - totalSeverity/10.0
	if confidence < 0 {
		confidence = 0
	}

	result.Metrics = types.ValidationMetrics{
		Completeness: completeness,
		Quality:      qualityScore(schema, response),
		Confidence:   confidence,
	}
	result.IsValid = len(result.Errors) == 0

	if !result.IsValid && len(result.Suggestions) == 0 {
		result.Suggestions = append(result.Suggestions,
			"request a revision pass with the revision template variant")
	}
	return result, nil
}

func checkRule(rule Rule, raw any) []types.ValidationError {
	var errs []types.ValidationError

	if rule.Numeric {
		num, ok := asFloat(raw)
		if !ok {
			return []types.ValidationError{{
				Field:    rule.Field,
				Message:  "expected a numeric value",
				Severity: types.SeverityMajor,
			}}
		}
		if rule.Min != nil && num < *rule.Min {
			errs = append(errs, types.ValidationError{
				Field:    rule.Field,
				Message:  fmt.Sprintf("value %g below minimum %g", num, *rule.Min),
				Severity: types.SeverityMajor,
			})
		}
		if rule.Max != nil && num > *rule.Max {
			errs = append(errs, types.ValidationError{
				Field:    rule.Field,
				Message:  fmt.Sprintf("value %g above maximum %g", num, *rule.Max),
				Severity: types.SeverityMajor,
			})
		}
		return errs
	}

	str, ok := raw.(string)
	if !ok {
		return []types.ValidationError{{
			Field:    rule.Field,
			Message:  "expected a string value",
			Severity: types.SeverityMajor,
		}}
	}

	if rule.MinLength > 0 && len(str) < rule.MinLength {
		errs = append(errs, types.ValidationError{
			Field:    rule.Field,
			Message:  fmt.Sprintf("length %d below minimum %d", len(str), rule.MinLength),
			Severity: types.SeverityMajor,
		})
	}
	if rule.MaxLength > 0 && len(str) > rule.MaxLength {
		errs = append(errs, types.ValidationError{
			Field:    rule.Field,
			Message:  fmt.Sprintf("length %d above maximum %d", len(str), rule.MaxLength),
			Severity: types.SeverityMinor,
		})
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(str) {
		errs = append(errs, types.ValidationError{
			Field:    rule.Field,
			Message:  fmt.Sprintf("value does not match pattern %s", rule.Pattern.String()),
			Severity: types.SeverityMajor,
		})
	}
	if len(rule.Enum) > 0 && !contains(rule.Enum, str) {
		errs = append(errs, types.ValidationError{
			Field:    rule.Field,
			Message:  fmt.Sprintf("value %q not in %v", str, rule.Enum),
			Severity: types.SeverityMajor,
		})
	}
	return errs
}

// qualityScore averages four independent sub-scores, each in [0,1]:
// content length adequacy, level of detail, internal consistency, and
// relevance to the entity type.
func qualityScore(schema *Schema, response map[string]any) float64 {
	length := lengthAdequacy(schema, response)
	detail := levelOfDetail(schema, response)
	consistency := internalConsistency(response)
	relevance := relevance(schema, response)
	return (length + detail + consistency + relevance) / 4.0
}

// lengthAdequacy compares total textual content against the sum of the
// schema's minimum lengths; hitting twice the minimum scores full marks.
func lengthAdequacy(schema *Schema, response map[string]any) float64 {
	var have, want int
	for _, rule := range schema.Rules {
		want += rule.MinLength
		if s, ok := response[rule.Field].(string); ok {
			have += len(s)
		}
	}
	if want == 0 {
		return 1.0
	}
	score := float64(have) / float64(2*want)
	if score > 1 {
		score = 1
	}
	return score
}

// levelOfDetail is the fraction of schema fields populated.
func levelOfDetail(schema *Schema, response map[string]any) float64 {
	if len(schema.Rules) == 0 {
		return 1.0
	}
	populated := 0
	for _, rule := range schema.Rules {
		if raw, ok := response[rule.Field]; ok && !isEmptyValue(raw) {
			populated++
		}
	}
	return float64(populated) / float64(len(schema.Rules))
}

// internalConsistency applies cheap cross-field checks: a quantity
// without a unit, or a source_url without source_reliability, reads as
// internally inconsistent content.
func internalConsistency(response map[string]any) float64 {
	score := 1.0
	if _, hasQty := response["quantity"]; hasQty {
		if u, ok := response["unit"].(string); !ok || u == "" {
			score -= 0.5
		}
	}
	if u, ok := response["source_url"].(string); ok && u != "" {
		if _, ok := asFloat(response["source_reliability"]); !ok {
			score -= 0.25
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// relevance is the fraction of response fields the schema knows about.
func relevance(schema *Schema, response map[string]any) float64 {
	if len(response) == 0 {
		return 0
	}
	known := 0
	for field := range response {
		if _, ok := schema.Rule(field); ok {
			known++
		}
	}
	return float64(known) / float64(len(response))
}

func semanticChemicalFormula(response map[string]any) []types.ValidationError {
	raw, ok := response["chemical_formula"].(string)
	if !ok || raw == "" {
		return nil
	}
	if !chemicalFormulaPattern.MatchString(raw) {
		return []types.ValidationError{{
			Field:    "chemical_formula",
			Message:  fmt.Sprintf("%q is not a valid chemical formula", raw),
			Severity: types.SeverityMinor,
		}}
	}
	return nil
}

func semanticNumericRange(response map[string]any) []types.ValidationError {
	var errs []types.ValidationError
	if raw, ok := response["source_reliability"]; ok {
		if num, numOK := asFloat(raw); numOK && (num < 0 || num > 1) {
			errs = append(errs, types.ValidationError{
				Field:    "source_reliability",
				Message:  "reliability score must be within [0,1]",
				Severity: types.SeverityMinor,
			})
		}
	}
	return errs
}

func semanticSourceURL(response map[string]any) []types.ValidationError {
	raw, ok := response["source_url"].(string)
	if !ok || raw == "" {
		return nil
	}
	if !urlPattern.MatchString(raw) {
		return []types.ValidationError{{
			Field:    "source_url",
			Message:  "source url must use http or https",
			Severity: types.SeverityMinor,
		}}
	}
	return nil
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func isEmptyValue(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
