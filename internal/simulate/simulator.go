// Package simulate generates schema-conforming responses without calling
// a real AI backend. The simulator produces the same response shape a
// provider adapter would, so validator and orchestration paths can be
// exercised deterministically.
package simulate

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/vitalyst/enrich/internal/validate"
	"github.com/vitalyst/enrich/pkg/types"
)

// Simulator produces randomized content that always satisfies the
// registered validation schema for the requested entity type.
type Simulator struct {
	validator *validate.Validator

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed fixes the random source so generated content is reproducible.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New returns a Simulator drawing schemas from v.
func New(v *validate.Validator, opts ...Option) *Simulator {
	s := &Simulator{
		validator: v,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns a response map satisfying the (entity, version)
// schema. Every required field is present and passes its structural
// constraints, so validating the output yields isValid=true.
func (s *Simulator) Generate(entity types.EntityType, version string) (map[string]any, error) {
	schema, err := s.validator.Schema(entity, version)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(schema.Rules))
	for _, rule := range schema.Rules {
		out[rule.Field] = s.fieldValue(entity, rule)
	}
	return out, nil
}

// JSON renders a generated response as a compact JSON document, the form
// a provider adapter would hand back as RawResponse.Content.
func (s *Simulator) JSON(entity types.EntityType, version string) (string, error) {
	content, err := s.Generate(entity, version)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("simulate: marshal %s response: %w", entity, err)
	}
	return string(raw), nil
}

func (s *Simulator) fieldValue(entity types.EntityType, rule validate.Rule) any {
	if rule.Numeric {
		return s.numericValue(rule)
	}
	if len(rule.Enum) > 0 {
		s.mu.Lock()
		v := rule.Enum[s.rng.Intn(len(rule.Enum))]
		s.mu.Unlock()
		return v
	}
	return s.textValue(entity, rule)
}

func (s *Simulator) numericValue(rule validate.Rule) float64 {
	lo, hi := 0.0, 1.0
	if rule.Min != nil {
		lo = *rule.Min
	}
	if rule.Max != nil {
		hi = *rule.Max
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

// Canned values for fields with semantic validators attached. Everything
// else is padded filler text sized to the rule's length bounds.
var cannedValues = map[string][]string{
	"chemical_formula": {"C6H8O6", "C27H44O", "C63H88CoN14O14P", "CaCO3", "C20H30O"},
	"source_url": {
		"https://ods.od.nih.gov/factsheets/",
		"https://www.efsa.europa.eu/en/topics/topic/vitamins",
		"https://pubmed.ncbi.nlm.nih.gov/simulated",
	},
}

var fillerSentences = []string{
	"This nutrient plays a central role in cellular metabolism and energy production.",
	"Adequate intake supports immune function and tissue repair across all age groups.",
	"Bioavailability varies with food matrix, preparation method, and individual status.",
	"Deficiency is rare in balanced diets but may occur under restrictive eating patterns.",
	"Interactions with other micronutrients can affect absorption and utilization.",
}

func (s *Simulator) textValue(entity types.EntityType, rule validate.Rule) string {
	if canned, ok := cannedValues[rule.Field]; ok {
		s.mu.Lock()
		v := canned[s.rng.Intn(len(canned))]
		s.mu.Unlock()
		return v
	}

	minLen := rule.MinLength
	if minLen == 0 {
		minLen = 20
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Simulated %s %s.", entity, strings.ReplaceAll(rule.Field, "_", " "))
	for b.Len() < minLen {
		s.mu.Lock()
		sentence := fillerSentences[s.rng.Intn(len(fillerSentences))]
		s.mu.Unlock()
		b.WriteByte(' ')
		b.WriteString(sentence)
	}
	text := b.String()
	if rule.MaxLength > 0 && len(text) > rule.MaxLength {
		text = text[:rule.MaxLength]
	}
	return text
}
