// Package recommend selects one product recommendation per targeted user
// through one of several interchangeable strategies.
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/jjglab/campaign-agent/internal/db"
	"github.com/jjglab/campaign-agent/internal/llm"
)

// Strategy identifies a recommendation algorithm. Strategies are mutually
// exclusive per invocation and chosen by the caller's use case.
type Strategy string

// Supported strategies.
const (
	// StrategySimilarity picks one embedding-matched product shared by the
	// whole cohort.
	StrategySimilarity Strategy = "similarity"
	// StrategyCart picks each user's longest-outstanding abandoned cart item.
	StrategyCart Strategy = "cart"
	// StrategyRepurchase picks each user's most frequently purchased product.
	StrategyRepurchase Strategy = "repurchase"
	// StrategyFallback picks deterministically from a fixed catalog.
	StrategyFallback Strategy = "fallback"
)

// ParseStrategy converts a string to a Strategy. Empty input selects the
// fallback strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySimilarity, StrategyCart, StrategyRepurchase, StrategyFallback:
		return Strategy(s), nil
	case "":
		return StrategyFallback, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want similarity, cart, repurchase, or fallback)", s)
}

// DefaultTopK is the default size of the fallback candidate slice.
const DefaultTopK = 3

// Store is the catalog and purchase-history access the engine needs.
type Store interface {
	GetCategoryProducts(ctx context.Context, category string) ([]db.Product, error)
	GetProductsForCategory(ctx context.Context, category string, limit int) ([]db.Product, error)
	HasProductCatalog(ctx context.Context) bool
	GetAbandonedCartItems(ctx context.Context, userIDs []string) ([]db.CartItem, error)
	GetDeliveredOrderItems(ctx context.Context, userIDs []string) ([]db.OrderItem, error)
}

// Context carries the active strategy and its parameters for one invocation.
type Context struct {
	Strategy     Strategy
	CampaignText string
	TopK         int
}

// Recommendation is the winning product for one user, with the score or
// rank evidence the strategy used to pick it.
type Recommendation struct {
	Product       db.Product
	Strategy      Strategy
	Score         float64
	PurchaseCount int
	CartCreatedAt time.Time
}

// Engine selects recommendations. The embedder may be nil when the
// similarity strategy is not in use.
type Engine struct {
	store    Store
	embedder llm.Embedder
}

// NewEngine creates a recommendation engine over the given store and
// embedding provider.
func NewEngine(store Store, embedder llm.Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Select returns one recommendation per user id. Users for whom the active
// strategy found nothing are absent from the mapping; callers must treat a
// missing key as "no recommendation". An empty user list and a strategy
// that finds zero candidates both yield an empty mapping, not an error.
func (e *Engine) Select(ctx context.Context, users []db.User, rc Context) (map[string]Recommendation, error) {
	if len(users) == 0 {
		return map[string]Recommendation{}, nil
	}
	if rc.TopK <= 0 {
		rc.TopK = DefaultTopK
	}

	switch rc.Strategy {
	case StrategySimilarity:
		return e.selectBySimilarity(ctx, users, rc.CampaignText)
	case StrategyCart:
		return e.selectByAbandonedCart(ctx, users)
	case StrategyRepurchase:
		return e.selectByRepurchase(ctx, users)
	case StrategyFallback, "":
		return e.selectFallback(ctx, users, rc.TopK)
	}
	return nil, fmt.Errorf("unknown strategy %q", rc.Strategy)
}

func userIDs(users []db.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	return ids
}
