package recommend

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"strings"

	"github.com/jjglab/campaign-agent/internal/db"
)

// fallbackCatalog is the small fixed catalog used when no real product data
// is available. Selection is deterministic per user, so the same user gets
// the same fallback recommendation across runs.
var fallbackCatalog = []db.Product{
	{ProductID: "P001", Name: "Soothing Moisture Cream", DeepLink: "https://example.com/p001", Category: "skincare"},
	{ProductID: "P002", Name: "Gentle Daily Cleanser", DeepLink: "https://example.com/p002", Category: "cleanser"},
	{ProductID: "P003", Name: "Hydrating Toner", DeepLink: "https://example.com/p003", Category: "toner"},
	{ProductID: "P004", Name: "Moisture Barrier Serum", DeepLink: "https://example.com/p004", Category: "serum"},
	{ProductID: "P005", Name: "Daily Sunscreen", DeepLink: "https://example.com/p005", Category: "suncare"},
}

// selectFallback recommends deterministically per user. When the user
// carries a category attribute and a real products table exists, a
// category-filtered lookup is preferred; any lookup failure degrades
// silently to the hash-based pick.
func (e *Engine) selectFallback(ctx context.Context, users []db.User, topK int) (map[string]Recommendation, error) {
	hasCatalog := e.store != nil && e.store.HasProductCatalog(ctx)

	out := make(map[string]Recommendation, len(users))
	for _, u := range users {
		if hasCatalog {
			if cat := strings.TrimSpace(u.TopCategory30d); cat != "" {
				if prods, err := e.store.GetProductsForCategory(ctx, cat, topK); err == nil && len(prods) > 0 {
					out[u.UserID] = Recommendation{Product: prods[0], Strategy: StrategyFallback}
					continue
				}
			}
		}
		out[u.UserID] = Recommendation{
			Product:  fallbackCandidates(u.UserID, topK)[0],
			Strategy: StrategyFallback,
		}
	}
	return out, nil
}

// fallbackCandidates hashes the user id to a start index and returns a
// rotating slice of topK catalog products with wrap-around.
func fallbackCandidates(userID string, topK int) []db.Product {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sum := md5.Sum([]byte(userID))
	start := int(binary.BigEndian.Uint64(sum[:8]) % uint64(len(fallbackCatalog)))

	out := make([]db.Product, 0, topK)
	for i := 0; i < topK; i++ {
		out = append(out, fallbackCatalog[(start+i)%len(fallbackCatalog)])
	}
	return out
}
