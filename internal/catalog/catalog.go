package catalog

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind decides how an option's price combines with the item's base price.
type Kind string

const (
	// KindFixed replaces the base price with the chosen option's price.
	KindFixed Kind = "fixed"
	// KindAdditive adds the chosen option's price on top of the base price.
	KindAdditive Kind = "additive"
)

type Option struct {
	Label string `json:"label"`
	Price int    `json:"price"`
	// Image overrides the item image when this option is chosen.
	Image string `json:"image,omitempty"`
}

type VariantGroup struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Options []Option `json:"options"`
}

type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// BasePrice is nil when the price is fully variant-driven.
	BasePrice *int   `json:"base_price"`
	Type      string `json:"type"` // physical | digital | service
	// Stock of -1 means unlimited.
	Stock          int            `json:"stock"`
	ImageURL       string         `json:"image_url"`
	AIInstructions string         `json:"ai_instructions"`
	Groups         []VariantGroup `json:"groups"`
}

type Catalog struct {
	Items []Item
}

// HasRealVariants reports whether the item carries at least one group
// with a non-empty option list. Groups without options are display
// noise from the merchant dashboard and never constrain an order.
func (it *Item) HasRealVariants() bool {
	for _, g := range it.Groups {
		if len(g.Options) > 0 {
			return true
		}
	}
	return false
}

// CheckStock reports whether quantity units can be sold and how many
// are available. Unlimited stock always passes.
func (it *Item) CheckStock(quantity int) (bool, int) {
	if it.Stock < 0 {
		return true, -1
	}
	return it.Stock >= quantity, it.Stock
}

// Resolve finds an item by name: case-insensitive exact match first,
// then case-insensitive containment in either direction. Returns nil
// when nothing matches.
func (c *Catalog) Resolve(name string) *Item {
	search := strings.ToLower(strings.TrimSpace(name))
	if search == "" {
		return nil
	}

	for i := range c.Items {
		if strings.ToLower(c.Items[i].Name) == search {
			return &c.Items[i]
		}
	}
	for i := range c.Items {
		itemName := strings.ToLower(c.Items[i].Name)
		if strings.Contains(search, itemName) || strings.Contains(itemName, search) {
			return &c.Items[i]
		}
	}
	return nil
}

// SearchScored ranks items against a free-form name the model produced
// and returns the best candidate, or nil when no item scores at least
// minScore. Exact name beats containment beats per-word hits in the
// name or description.
func (c *Catalog) SearchScored(name string) *Item {
	const minScore = 10

	search := strings.ToLower(strings.TrimSpace(name))
	if search == "" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(search) {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}

	var best *Item
	bestScore := 0
	for i := range c.Items {
		it := &c.Items[i]
		itemName := strings.ToLower(it.Name)
		itemText := strings.ToLower(it.Name + " " + it.Description + " " + it.AIInstructions)

		score := 0
		switch {
		case itemName == search:
			score = 100
		case strings.Contains(search, itemName) || strings.Contains(itemName, search):
			score = 50
		default:
			for _, term := range terms {
				if strings.Contains(itemName, term) {
					score += 10
				}
			}
			if score < 20 {
				for _, term := range terms {
					if strings.Contains(itemText, term) {
						score += 2
					}
				}
			}
		}

		if score > bestScore {
			bestScore = score
			best = it
		}
	}

	if bestScore < minScore {
		return nil
	}
	return best
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases, strips diacritics and trims, so "Pétite " matches
// "petite".
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(strings.ToLower(out))
}

// Match finds the option a user/model supplied label refers to.
// Matching is accent- and case-insensitive and substring-tolerant in
// both directions, so "small" matches "Small (50g)" and "marine"
// matches "Bleu Marine".
func (g *VariantGroup) Match(label string) (Option, bool) {
	selected := fold(label)
	if selected == "" {
		return Option{}, false
	}

	for _, opt := range g.Options {
		if fold(opt.Label) == selected {
			return opt, true
		}
	}
	for _, opt := range g.Options {
		optLabel := fold(opt.Label)
		if strings.Contains(optLabel, selected) || strings.Contains(selected, optLabel) {
			return opt, true
		}
	}
	return Option{}, false
}

// GroupByName finds a variant group by case-insensitive name.
func (it *Item) GroupByName(name string) *VariantGroup {
	search := fold(name)
	for i := range it.Groups {
		if fold(it.Groups[i].Name) == search {
			return &it.Groups[i]
		}
	}
	return nil
}

// OptionLabels lists the labels of a group, for clarifying questions.
func (g *VariantGroup) OptionLabels() []string {
	labels := make([]string, len(g.Options))
	for i, o := range g.Options {
		labels[i] = o.Label
	}
	return labels
}

// rawVariant mirrors the merchant dashboard's catalog blob. Options are
// sometimes bare strings, sometimes objects with value/name and price;
// kind is "fixed", "additive" or the legacy alias "supplement".
type rawVariant struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Options []json.RawMessage `json:"options"`
}

type rawOption struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Price int    `json:"price"`
	Image string `json:"image"`
}

// NormalizeVariants converts the raw catalog JSON for one item into the
// canonical VariantGroup shape. This is the only place the dynamic blob
// is interpreted; everything downstream sees canonical types.
func NormalizeVariants(raw []byte) ([]VariantGroup, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var variants []rawVariant
	if err := json.Unmarshal(raw, &variants); err != nil {
		return nil, err
	}

	groups := make([]VariantGroup, 0, len(variants))
	for _, v := range variants {
		kind := KindFixed
		if v.Type == "additive" || v.Type == "supplement" {
			kind = KindAdditive
		}

		g := VariantGroup{Name: v.Name, Kind: kind}
		for _, rawOpt := range v.Options {
			var label, image string
			var price int

			var s string
			if err := json.Unmarshal(rawOpt, &s); err == nil {
				label = s
			} else {
				var o rawOption
				if err := json.Unmarshal(rawOpt, &o); err != nil {
					return nil, err
				}
				label = o.Value
				if label == "" {
					label = o.Name
				}
				price = o.Price
				image = o.Image
			}

			if label == "" {
				continue
			}
			g.Options = append(g.Options, Option{Label: label, Price: price, Image: image})
		}
		groups = append(groups, g)
	}
	return groups, nil
}
