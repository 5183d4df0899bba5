package db

import (
	"context"
	"fmt"
)

// GetCategoryProducts retrieves all products mapped to a concern category,
// each joined with its OCR-derived descriptive text. Retrieval order (by
// product id) is the tie-break order for equal similarity scores.
func (db *DB) GetCategoryProducts(ctx context.Context, category string) ([]Product, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.product_id, p.name, COALESCE(p.deep_link, ''), COALESCE(p.category, ''),
		        COALESCE(o.detail_slot, ''), COALESCE(o.keyword, '')
		 FROM products p
		 JOIN product_concern_map m ON m.product_id = p.product_id
		 LEFT JOIN product_ocr_text o ON o.product_id = p.product_id
		 WHERE m.product_concern = $1
		 ORDER BY p.product_id`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load products for category %q: %w", category, err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetProductsForCategory retrieves up to limit active products in a category.
// Used by the catalog fallback strategy when a real product table exists.
func (db *DB) GetProductsForCategory(ctx context.Context, category string, limit int) ([]Product, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT product_id, name, COALESCE(deep_link, ''), COALESCE(category, ''), '', ''
		 FROM products
		 WHERE ($1 = '' OR category = $1)
		 ORDER BY product_id DESC
		 LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// HasProductCatalog reports whether a products table exists in the current
// schema. Lookup failures report false so callers degrade silently.
func (db *DB) HasProductCatalog(ctx context.Context) bool {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM information_schema.tables
		 WHERE table_schema = current_schema()
		   AND table_name IN ('products', 'product', 'catalog_products')`,
	).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// GetAbandonedCartItems retrieves every product sitting in an ABANDONED cart
// for the given users, with the cart creation time. Ordered by user id and
// cart age so the first row per user is the longest-outstanding item.
func (db *DB) GetAbandonedCartItems(ctx context.Context, userIDs []string) ([]CartItem, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT c.user_id, p.product_id, p.name, COALESCE(p.deep_link, ''),
		        COALESCE(p.category, ''), COALESCE(o.detail_slot, ''), COALESCE(o.keyword, ''),
		        c.created_at
		 FROM carts c
		 JOIN cart_items ci ON ci.cart_id = c.cart_id
		 JOIN products p ON p.product_id = ci.product_id
		 LEFT JOIN product_ocr_text o ON o.product_id = p.product_id
		 WHERE c.status = 'ABANDONED' AND c.user_id = ANY($1)
		 ORDER BY c.user_id, c.created_at, p.product_id`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load abandoned cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.UserID, &it.Product.ProductID, &it.Product.Name,
			&it.Product.DeepLink, &it.Product.Category, &it.Product.DetailText,
			&it.Product.Keywords, &it.CartCreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// GetDeliveredOrderItems retrieves every product from DELIVERED orders for
// the given users. One row per ordered item; callers count frequencies.
func (db *DB) GetDeliveredOrderItems(ctx context.Context, userIDs []string) ([]OrderItem, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT o.user_id, p.product_id, p.name, COALESCE(p.deep_link, ''),
		        COALESCE(p.category, ''), COALESCE(ocr.detail_slot, ''), COALESCE(ocr.keyword, '')
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.order_id
		 JOIN products p ON p.product_id = oi.product_id
		 LEFT JOIN product_ocr_text ocr ON ocr.product_id = p.product_id
		 WHERE o.order_status = 'DELIVERED' AND o.user_id = ANY($1)
		 ORDER BY o.user_id, p.product_id`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivered order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.UserID, &it.Product.ProductID, &it.Product.Name,
			&it.Product.DeepLink, &it.Product.Category, &it.Product.DetailText,
			&it.Product.Keywords); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// rowScanner matches the subset of pgx.Rows needed by scanProducts.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
}

func scanProducts(rows rowScanner) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.DeepLink, &p.Category,
			&p.DetailText, &p.Keywords); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}
