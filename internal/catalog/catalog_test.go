package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func candleItem() Item {
	return Item{
		ID:        "p1",
		Name:      "Bougies Parfumées Artisanales",
		BasePrice: intPtr(5000),
		Groups: []VariantGroup{
			{
				Name: "Taille",
				Kind: KindFixed,
				Options: []Option{
					{Label: "Petite (50g)", Price: 5000},
					{Label: "Moyenne (100g)", Price: 8000},
					{Label: "Grande (200g)", Price: 12000},
				},
			},
		},
	}
}

func TestResolveExactCaseInsensitive(t *testing.T) {
	c := &Catalog{Items: []Item{candleItem()}}
	it := c.Resolve("bougies parfumées artisanales")
	require.NotNil(t, it)
	assert.Equal(t, "p1", it.ID)
}

func TestResolveContainmentBothDirections(t *testing.T) {
	c := &Catalog{Items: []Item{candleItem()}}

	// Model appended a variant to the product name.
	it := c.Resolve("Bougies Parfumées Artisanales Petite")
	require.NotNil(t, it)
	assert.Equal(t, "p1", it.ID)

	// Model shortened the name.
	it = c.Resolve("Bougies Parfumées")
	require.NotNil(t, it)
	assert.Equal(t, "p1", it.ID)
}

func TestResolveNoMatch(t *testing.T) {
	c := &Catalog{Items: []Item{candleItem()}}
	assert.Nil(t, c.Resolve("Parfum d'Ambiance"))
	assert.Nil(t, c.Resolve(""))
}

func TestSearchScoredPrefersExact(t *testing.T) {
	c := &Catalog{Items: []Item{
		{ID: "p1", Name: "Pizza Pepperoni"},
		{ID: "p2", Name: "Pizza Margherita"},
	}}
	it := c.SearchScored("pizza margherita")
	require.NotNil(t, it)
	assert.Equal(t, "p2", it.ID)
}

func TestSearchScoredBelowThreshold(t *testing.T) {
	c := &Catalog{Items: []Item{{ID: "p1", Name: "Pizza Pepperoni"}}}
	assert.Nil(t, c.SearchScored("quelque chose d'autre"))
}

func TestMatchCaseAndParentheticalTolerant(t *testing.T) {
	g := VariantGroup{
		Name: "Size",
		Kind: KindFixed,
		Options: []Option{
			{Label: "Small (50g)", Price: 5000},
			{Label: "Medium (100g)", Price: 8000},
		},
	}

	for _, label := range []string{"small", "SMALL", "Small", "Small (50g)"} {
		opt, ok := g.Match(label)
		require.True(t, ok, "label %q should match", label)
		assert.Equal(t, "Small (50g)", opt.Label)
	}

	_, ok := g.Match("Large")
	assert.False(t, ok)

	g2 := candleItem().Groups[0]
	opt, ok := g2.Match("PETITE")
	require.True(t, ok)
	assert.Equal(t, "Petite (50g)", opt.Label)
}

func TestMatchAccentInsensitive(t *testing.T) {
	g := VariantGroup{
		Name:    "Couleur",
		Kind:    KindAdditive,
		Options: []Option{{Label: "Bleu Marine", Price: 500}},
	}

	opt, ok := g.Match("marine")
	require.True(t, ok)
	assert.Equal(t, "Bleu Marine", opt.Label)

	opt, ok = g.Match("BLEU MARINÉ")
	require.True(t, ok)
	assert.Equal(t, "Bleu Marine", opt.Label)
}

func TestMatchIsIdempotent(t *testing.T) {
	g := candleItem().Groups[0]
	first, ok1 := g.Match("moyenne")
	second, ok2 := g.Match("moyenne")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestNormalizeVariantsObjectOptions(t *testing.T) {
	raw := []byte(`[
		{"name":"Taille","type":"fixed","options":[
			{"value":"Petite (50g)","price":5000},
			{"value":"Grande (200g)","price":12000}
		]},
		{"name":"Gravure","type":"supplement","options":[
			{"name":"Initiales","price":500}
		]}
	]`)

	groups, err := NormalizeVariants(raw)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, KindFixed, groups[0].Kind)
	assert.Equal(t, 5000, groups[0].Options[0].Price)
	assert.Equal(t, "Petite (50g)", groups[0].Options[0].Label)

	// "supplement" is a legacy alias for additive.
	assert.Equal(t, KindAdditive, groups[1].Kind)
	assert.Equal(t, "Initiales", groups[1].Options[0].Label)
}

func TestNormalizeVariantsStringOptions(t *testing.T) {
	raw := []byte(`[{"name":"Couleur","type":"fixed","options":["Rouge","Bleu"]}]`)

	groups, err := NormalizeVariants(raw)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []Option{{Label: "Rouge"}, {Label: "Bleu"}}, groups[0].Options)
}

func TestNormalizeVariantsNullAndEmpty(t *testing.T) {
	groups, err := NormalizeVariants(nil)
	require.NoError(t, err)
	assert.Nil(t, groups)

	groups, err = NormalizeVariants([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, groups)
}

func TestNormalizeVariantsBadJSON(t *testing.T) {
	_, err := NormalizeVariants([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
