package recommend

import (
	"context"
	"fmt"

	"github.com/jjglab/campaign-agent/internal/db"
)

// selectByAbandonedCart recommends, per user, the item from the abandoned
// cart with the earliest creation time: the longest-outstanding abandonment.
// Users without an abandoned cart get no entry in the mapping.
func (e *Engine) selectByAbandonedCart(ctx context.Context, users []db.User) (map[string]Recommendation, error) {
	items, err := e.store.GetAbandonedCartItems(ctx, userIDs(users))
	if err != nil {
		return nil, fmt.Errorf("failed to load abandoned carts: %w", err)
	}

	out := make(map[string]Recommendation)
	for _, it := range items {
		cur, ok := out[it.UserID]
		// Strictly earlier wins; equal timestamps keep the first item in
		// retrieval order.
		if !ok || it.CartCreatedAt.Before(cur.CartCreatedAt) {
			out[it.UserID] = Recommendation{
				Product:       it.Product,
				Strategy:      StrategyCart,
				CartCreatedAt: it.CartCreatedAt,
			}
		}
	}
	return out, nil
}
