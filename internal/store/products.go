package store

import (
	"context"
	"fmt"

	"chatcommerce/internal/catalog"
)

// LoadCatalog reads the active products of an agent and normalizes
// their variant blobs into canonical groups. A product with a broken
// variants payload is skipped rather than failing the whole turn.
func (s *Store) LoadCatalog(ctx context.Context, agentID string) (*catalog.Catalog, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, name, COALESCE(description, ''), price_fcfa, product_type,
		        COALESCE(stock_quantity, -1), COALESCE(image_url, ''),
		        COALESCE(ai_instructions, ''), variants
		 FROM products
		 WHERE agent_id = $1 AND is_active = true
		 ORDER BY name`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var c catalog.Catalog
	for rows.Next() {
		var (
			it       catalog.Item
			price    *int
			variants []byte
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &price, &it.Type,
			&it.Stock, &it.ImageURL, &it.AIInstructions, &variants); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		it.BasePrice = price

		groups, err := catalog.NormalizeVariants(variants)
		if err != nil {
			continue
		}
		it.Groups = groups
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return &c, nil
}

// DecrementStock reduces a product's stock after a sale, clamped at
// zero. Unlimited stock (negative values) is left alone.
func (s *Store) DecrementStock(ctx context.Context, productID string, quantity int) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE products
		 SET stock_quantity = GREATEST(stock_quantity - $2, 0)
		 WHERE id = $1 AND stock_quantity >= 0`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}
