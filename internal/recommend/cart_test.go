package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjglab/campaign-agent/internal/db"
)

func TestCart_EarliestAbandonedCartWins(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	store := &fakeStore{
		cartItems: []db.CartItem{
			{UserID: "u1", Product: db.Product{ProductID: "P_OLD"}, CartCreatedAt: t1},
			{UserID: "u1", Product: db.Product{ProductID: "P_NEW"}, CartCreatedAt: t2},
		},
	}
	engine := NewEngine(store, nil)

	recs, err := engine.Select(context.Background(),
		[]db.User{{UserID: "u1"}}, Context{Strategy: StrategyCart})

	require.NoError(t, err)
	require.Contains(t, recs, "u1")
	assert.Equal(t, "P_OLD", recs["u1"].Product.ProductID)
	assert.Equal(t, t1, recs["u1"].CartCreatedAt)
	assert.Equal(t, StrategyCart, recs["u1"].Strategy)
}

func TestCart_OrderOfRowsDoesNotChangeWinner(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	store := &fakeStore{
		cartItems: []db.CartItem{
			{UserID: "u1", Product: db.Product{ProductID: "P_NEW"}, CartCreatedAt: t2},
			{UserID: "u1", Product: db.Product{ProductID: "P_OLD"}, CartCreatedAt: t1},
		},
	}
	engine := NewEngine(store, nil)

	recs, err := engine.Select(context.Background(),
		[]db.User{{UserID: "u1"}}, Context{Strategy: StrategyCart})

	require.NoError(t, err)
	assert.Equal(t, "P_OLD", recs["u1"].Product.ProductID)
}

func TestCart_EqualTimestampsKeepFirstRetrieved(t *testing.T) {
	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		cartItems: []db.CartItem{
			{UserID: "u1", Product: db.Product{ProductID: "P_FIRST"}, CartCreatedAt: ts},
			{UserID: "u1", Product: db.Product{ProductID: "P_SECOND"}, CartCreatedAt: ts},
		},
	}
	engine := NewEngine(store, nil)

	recs, err := engine.Select(context.Background(),
		[]db.User{{UserID: "u1"}}, Context{Strategy: StrategyCart})

	require.NoError(t, err)
	assert.Equal(t, "P_FIRST", recs["u1"].Product.ProductID)
}

func TestCart_UserWithoutAbandonedCartIsExcluded(t *testing.T) {
	store := &fakeStore{
		cartItems: []db.CartItem{
			{UserID: "u1", Product: db.Product{ProductID: "P1"}, CartCreatedAt: time.Now()},
		},
	}
	engine := NewEngine(store, nil)

	recs, err := engine.Select(context.Background(),
		[]db.User{{UserID: "u1"}, {UserID: "u2"}}, Context{Strategy: StrategyCart})

	require.NoError(t, err)
	assert.Contains(t, recs, "u1")
	assert.NotContains(t, recs, "u2")
}
