package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/jjglab/campaign-agent/internal/db"
)

// selectByRepurchase recommends, per user, the product with the highest
// count of delivered orders. Rows are sorted user ascending, count
// descending, product id ascending, and the first row per user wins, so
// count ties resolve deterministically within a run. Users with no
// delivered orders get no entry in the mapping.
func (e *Engine) selectByRepurchase(ctx context.Context, users []db.User) (map[string]Recommendation, error) {
	items, err := e.store.GetDeliveredOrderItems(ctx, userIDs(users))
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase history: %w", err)
	}

	type userProduct struct {
		userID    string
		productID string
	}
	counts := make(map[userProduct]int)
	products := make(map[string]db.Product)
	for _, it := range items {
		counts[userProduct{it.UserID, it.Product.ProductID}]++
		products[it.Product.ProductID] = it.Product
	}

	type row struct {
		userID    string
		productID string
		count     int
	}
	rows := make([]row, 0, len(counts))
	for k, c := range counts {
		rows = append(rows, row{userID: k.userID, productID: k.productID, count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].userID != rows[j].userID {
			return rows[i].userID < rows[j].userID
		}
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].productID < rows[j].productID
	})

	out := make(map[string]Recommendation)
	for _, r := range rows {
		if _, ok := out[r.userID]; ok {
			continue
		}
		out[r.userID] = Recommendation{
			Product:       products[r.productID],
			Strategy:      StrategyRepurchase,
			PurchaseCount: r.count,
		}
	}
	return out, nil
}
