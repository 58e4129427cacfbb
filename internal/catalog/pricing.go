package catalog

import "strings"

// PriceResult reports the effective unit price of an item for a given
// selection, the option labels that were matched, and any variant
// groups still lacking a valid selection.
type PriceResult struct {
	Unit    int
	Matched []string
	Missing []VariantGroup
}

// UnitPrice computes the effective unit price: base price, replaced by
// a chosen fixed-kind option when it carries a price, plus the sum of
// all chosen additive-kind option prices.
//
// Selections come from two sources, in priority order: the explicit
// selection map (group name matched case-insensitively), then option
// labels embedded in searchName (the model sometimes writes
// "Pizza Pepperoni Grande" instead of filling the map). Additive groups
// left unselected are not reported missing; fixed groups are.
func (it *Item) UnitPrice(selected map[string]string, searchName string) PriceResult {
	base := 0
	if it.BasePrice != nil {
		base = *it.BasePrice
	}

	if !it.HasRealVariants() {
		return PriceResult{Unit: base}
	}

	chosen := make(map[string]string, len(it.Groups))

	for key, value := range selected {
		if g := it.GroupByName(key); g != nil {
			chosen[g.Name] = value
		}
	}

	lowerSearch := strings.ToLower(searchName)
	for _, g := range it.Groups {
		if _, ok := chosen[g.Name]; ok {
			continue
		}
		for _, opt := range g.Options {
			if opt.Label != "" && strings.Contains(lowerSearch, strings.ToLower(opt.Label)) {
				chosen[g.Name] = opt.Label
				break
			}
		}
	}

	effectiveBase := base
	supplements := 0
	var matched []string
	var missing []VariantGroup

	for _, g := range it.Groups {
		if len(g.Options) == 0 {
			continue
		}

		value, ok := chosen[g.Name]
		if !ok {
			if g.Kind != KindAdditive {
				missing = append(missing, g)
			}
			continue
		}

		opt, found := g.Match(value)
		if !found {
			missing = append(missing, g)
			continue
		}

		if g.Kind == KindAdditive {
			supplements += opt.Price
		} else if opt.Price > 0 {
			effectiveBase = opt.Price
		}
		matched = append(matched, opt.Label)
	}

	if len(missing) > 0 {
		return PriceResult{Missing: missing}
	}

	return PriceResult{Unit: effectiveBase + supplements, Matched: matched}
}
