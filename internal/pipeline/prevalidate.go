package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatcommerce/internal/catalog"
	"chatcommerce/internal/tools"
)

// Validation is the outcome of pre-validating one tool call. Invalid
// calls are expected outcomes, folded back into the conversation as a
// clarifying question, never raised as errors.
type Validation struct {
	Valid bool
	Error string
}

func valid() Validation { return Validation{Valid: true} }

func invalid(format string, args ...any) Validation {
	return Validation{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// ValidateToolCall blocks create_order calls that lack a usable
// selection for a variant group, before the executor can default or
// hard-fail them. All other tools pass through. It stops at the first
// violation so the clarifying question stays singular.
func ValidateToolCall(name string, args json.RawMessage, cat *catalog.Catalog) Validation {
	if name != tools.ToolCreateOrder {
		return valid()
	}

	var order tools.CreateOrderArgs
	if err := json.Unmarshal(args, &order); err != nil {
		return invalid("Arguments de commande illisibles. Reformulez l'appel create_order.")
	}

	for _, line := range order.Items {
		// Unknown products are the executor's problem: it answers with
		// the catalog listing. Pre-validation only guards incomplete
		// variant selections on products we can resolve.
		product := cat.Resolve(line.ProductName)
		if product == nil {
			continue
		}

		for i := range product.Groups {
			g := &product.Groups[i]
			if len(g.Options) == 0 {
				continue
			}

			selected, ok := selectionFor(line.SelectedVariants, g.Name)
			if !ok {
				return invalid(
					"VARIANTE MANQUANTE pour %q. Demandez au client de choisir %s: %s. "+
						`Utilisez le champ "selected_variants".`,
					product.Name, g.Name, strings.Join(g.OptionLabels(), ", "))
			}

			if _, found := g.Match(selected); !found {
				return invalid(
					"Option %q invalide pour %s de %q. Options disponibles: %s.",
					selected, g.Name, product.Name, strings.Join(g.OptionLabels(), ", "))
			}
		}
	}

	return valid()
}

func selectionFor(selections map[string]string, groupName string) (string, bool) {
	for key, value := range selections {
		if strings.EqualFold(strings.TrimSpace(key), groupName) && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}
