package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalyst/enrich/pkg/types"
)

func newEngineWithBuiltins(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	for _, tmpl := range Builtin() {
		require.NoError(t, e.Register(tmpl))
	}
	return e
}

func TestRenderDeterministic(t *testing.T) {
	e := newEngineWithBuiltins(t)
	ctx := types.NutrientContext{Name: "Vitamin C", Category: "vitamin"}

	first, tmpl, err := e.Render(types.EntityNutrient, types.VariantInitial, ctx, "", "")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Contains(t, first, "Vitamin C")
	assert.Contains(t, first, "category: vitamin")
	assert.Equal(t, "v1", tmpl.Version)
	assert.Equal(t, "v1", tmpl.Config.SchemaVersion)

	for i := 0; i < 5; i++ {
		again, _, err := e.Render(types.EntityNutrient, types.VariantInitial, ctx, "", "")
		require.NoError(t, err)
		assert.Equal(t, first, again, "identical inputs must render byte-identical output")
	}
}

func TestRenderUnknownEntity(t *testing.T) {
	e := NewEngine()
	_, _, err := e.Render(types.EntityNutrient, types.VariantInitial, types.NutrientContext{Name: "Iron"}, "", "")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRenderUnknownVersion(t *testing.T) {
	e := newEngineWithBuiltins(t)
	_, _, err := e.Render(types.EntityNutrient, types.VariantInitial, types.NutrientContext{Name: "Iron"}, "v99", "")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRenderRejectsMismatchedContext(t *testing.T) {
	e := newEngineWithBuiltins(t)
	_, _, err := e.Render(types.EntityNutrient, types.VariantInitial, types.FoodContext{Name: "Apple"}, "", "")
	assert.Error(t, err)
}

func TestRenderRejectsInvalidContext(t *testing.T) {
	e := newEngineWithBuiltins(t)
	_, _, err := e.Render(types.EntityNutrient, types.VariantInitial, types.NutrientContext{}, "", "")
	assert.Error(t, err)
}

func TestVersionsAreImmutable(t *testing.T) {
	e := newEngineWithBuiltins(t)
	err := e.Register(Template{
		EntityType: types.EntityNutrient,
		Version:    "v1",
		Variants:   map[types.Variant]string{types.VariantInitial: "changed"},
	})
	assert.Error(t, err, "re-publishing an existing version must fail")
}

func TestLatestVersionResolution(t *testing.T) {
	e := newEngineWithBuiltins(t)
	require.NoError(t, e.Register(Template{
		EntityType: types.EntityNutrient,
		Version:    "v2",
		Config:     Config{SchemaVersion: "v2"},
		Variants:   map[types.Variant]string{types.VariantInitial: `New style prompt for {{.Name}}.`},
	}))

	out, tmpl, err := e.Render(types.EntityNutrient, types.VariantInitial, types.NutrientContext{Name: "Zinc"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Version)
	assert.Equal(t, "New style prompt for Zinc.", out)

	// Pinned versions keep working.
	_, tmpl, err = e.Render(types.EntityNutrient, types.VariantInitial, types.NutrientContext{Name: "Zinc"}, "v1", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", tmpl.Version)

	assert.Equal(t, []string{"v1", "v2"}, e.Versions(types.EntityNutrient))
}

func TestLanguageSubstitution(t *testing.T) {
	e := newEngineWithBuiltins(t)
	ctx := types.NutrientContext{Name: "Vitamin D"}

	german, tmpl, err := e.Render(types.EntityNutrient, types.VariantInitial, ctx, "", "de")
	require.NoError(t, err)
	assert.Contains(t, german, "Nährstoff")
	// Language never changes the schema binding.
	assert.Equal(t, "v1", tmpl.Config.SchemaVersion)

	// Regional variants match their base language.
	austrian, _, err := e.Render(types.EntityNutrient, types.VariantInitial, ctx, "", "de-AT")
	require.NoError(t, err)
	assert.Equal(t, german, austrian)

	// Unregistered languages fall back to the default content.
	french, _, err := e.Render(types.EntityNutrient, types.VariantInitial, ctx, "", "fr")
	require.NoError(t, err)
	assert.Contains(t, french, "Enrich the nutrient")
}

func TestLanguageFallbackForMissingVariant(t *testing.T) {
	e := newEngineWithBuiltins(t)
	// German overrides only the initial variant; revision falls back.
	out, _, err := e.Render(types.EntityNutrient, types.VariantRevision, types.NutrientContext{Name: "Iron"}, "", "de")
	require.NoError(t, err)
	assert.Contains(t, out, "failed validation")
}

func TestAllBuiltinVariantsRender(t *testing.T) {
	e := newEngineWithBuiltins(t)

	contexts := map[types.EntityType]types.EntityContext{
		types.EntityNutrient: types.NutrientContext{Name: "Magnesium"},
		types.EntityFood:     types.FoodContext{Name: "Spinach"},
		types.EntityContent:  types.ContentContext{FoodName: "Spinach", NutrientName: "Magnesium", Amount: 79, Unit: "mg"},
	}

	for entity, ctx := range contexts {
		for _, variant := range []types.Variant{types.VariantInitial, types.VariantFollowUp, types.VariantRevision} {
			out, _, err := e.Render(entity, variant, ctx, "", "")
			require.NoError(t, err, "%s/%s", entity, variant)
			assert.NotEmpty(t, out)
		}
	}
}
