package pipeline

import (
	"encoding/json"
	"testing"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func candleCatalog() *catalog.Catalog {
	return &catalog.Catalog{Items: []catalog.Item{
		{
			ID:        "p1",
			Name:      "Bougie Artisanale",
			BasePrice: intPtr(5000),
			Groups: []catalog.VariantGroup{
				{
					Name: "Taille",
					Kind: catalog.KindFixed,
					Options: []catalog.Option{
						{Label: "Petite", Price: 5000},
						{Label: "Moyenne", Price: 8000},
						{Label: "Grande", Price: 12000},
					},
				},
			},
		},
		{
			ID:        "p2",
			Name:      "T-Shirt Premium",
			BasePrice: intPtr(10000),
			Groups: []catalog.VariantGroup{
				{
					Name: "Size",
					Kind: catalog.KindFixed,
					Options: []catalog.Option{
						{Label: "Small (50g)", Price: 0},
						{Label: "Medium (100g)", Price: 0},
					},
				},
			},
		},
	}}
}

func orderArgs(t *testing.T, items []tools.OrderLineArgs) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(tools.CreateOrderArgs{
		Items:         items,
		CustomerName:  "Awa",
		CustomerPhone: "0708091011",
	})
	require.NoError(t, err)
	return raw
}

func TestValidateNonOrderToolsPass(t *testing.T) {
	cat := candleCatalog()
	for _, name := range []string{tools.ToolSendImage, tools.ToolFindOrder, tools.ToolCheckPaymentStatus, tools.ToolCreateBooking} {
		v := ValidateToolCall(name, json.RawMessage(`{}`), cat)
		assert.True(t, v.Valid, "tool %s must pass through", name)
	}
}

func TestValidateCompleteSelection(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
		ProductName:      "Bougie Artisanale",
		Quantity:         1,
		SelectedVariants: map[string]string{"Taille": "Moyenne"},
	}}), candleCatalog())
	assert.True(t, v.Valid)
	assert.Empty(t, v.Error)
}

func TestValidateMissingGroupListsOptions(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
		ProductName: "Bougie Artisanale",
		Quantity:    1,
	}}), candleCatalog())

	require.False(t, v.Valid)
	assert.Contains(t, v.Error, "Taille")
	assert.Contains(t, v.Error, "Petite")
	assert.Contains(t, v.Error, "Moyenne")
	assert.Contains(t, v.Error, "Grande")
}

func TestValidateFuzzyLabelMatching(t *testing.T) {
	for _, label := range []string{"small", "SMALL", "Small"} {
		v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
			ProductName:      "T-Shirt Premium",
			Quantity:         1,
			SelectedVariants: map[string]string{"size": label},
		}}), candleCatalog())
		assert.True(t, v.Valid, "label %q should validate", label)
	}

	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
		ProductName:      "T-Shirt Premium",
		Quantity:         1,
		SelectedVariants: map[string]string{"Size": "Large"},
	}}), candleCatalog())
	require.False(t, v.Valid)
	assert.Contains(t, v.Error, "Large")
	assert.Contains(t, v.Error, "Small (50g)")
}

func TestValidateCaseInsensitiveGroupKey(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
		ProductName:      "Bougie Artisanale",
		Quantity:         1,
		SelectedVariants: map[string]string{"taille": "grande"},
	}}), candleCatalog())
	assert.True(t, v.Valid)
}

func TestValidateUnknownProductPasses(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{{
		ProductName: "Produit Fantôme",
		Quantity:    1,
	}}), candleCatalog())
	assert.True(t, v.Valid, "unknown products are reported by the executor, not here")
}

func TestValidateStopsAtFirstViolation(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, orderArgs(t, []tools.OrderLineArgs{
		{ProductName: "Bougie Artisanale", Quantity: 1},
		{ProductName: "T-Shirt Premium", Quantity: 1},
	}), candleCatalog())

	require.False(t, v.Valid)
	assert.Contains(t, v.Error, "Bougie Artisanale")
	assert.NotContains(t, v.Error, "T-Shirt Premium")
}

func TestValidateIsIdempotent(t *testing.T) {
	args := orderArgs(t, []tools.OrderLineArgs{{
		ProductName: "Bougie Artisanale",
		Quantity:    1,
	}})
	cat := candleCatalog()

	first := ValidateToolCall(tools.ToolCreateOrder, args, cat)
	second := ValidateToolCall(tools.ToolCreateOrder, args, cat)
	assert.Equal(t, first, second)
}

func TestValidateBadPayload(t *testing.T) {
	v := ValidateToolCall(tools.ToolCreateOrder, json.RawMessage(`{"items": "oops"}`), candleCatalog())
	assert.False(t, v.Valid)
}
