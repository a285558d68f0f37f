package engine

import (
	"sync"
	"testing"

	"coinex/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return New(50000, zerolog.Nop())
}

func TestEngine_FullFill(t *testing.T) {
	e := newTestEngine()

	sell := e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 100)
	assert.Equal(t, models.StatusPending, sell.Status)

	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 1)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 1.0, trades[0].Amount)
	assert.Equal(t, buy.ID, trades[0].BuyOrderID)
	assert.Equal(t, sell.ID, trades[0].SellOrderID)
	assert.Equal(t, "bob", trades[0].BuyerID)
	assert.Equal(t, "alice", trades[0].SellerID)

	assert.Equal(t, models.StatusFilled, buy.Status)
	assert.Equal(t, 0.0, buy.Remaining)

	sellAfter := e.UserOrders("alice")[0]
	assert.Equal(t, models.StatusFilled, sellAfter.Status)
	assert.Equal(t, 0.0, sellAfter.Remaining)

	assert.Equal(t, 100.0, e.CurrentPrice())
}

func TestEngine_PartialFill(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 2, 100)
	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 1)
	assert.Equal(t, 1.0, trades[0].Amount)

	assert.Equal(t, models.StatusFilled, buy.Status)
	assert.Equal(t, 0.0, buy.Remaining)

	sell := e.UserOrders("alice")[0]
	assert.Equal(t, models.StatusPartial, sell.Status)
	assert.Equal(t, 1.0, sell.Remaining)
	assert.Equal(t, 1.0, sell.Filled)
}

func TestEngine_NoMatchRests(t *testing.T) {
	e := newTestEngine()

	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 90)

	assert.Empty(t, e.RecentTrades(0))
	assert.Equal(t, models.StatusPending, buy.Status)
	assert.Equal(t, 1.0, buy.Remaining)

	book := e.OrderBook()
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 90.0, book.Bids[0].Price)
	assert.Equal(t, 1.0, book.Bids[0].Amount)
	assert.Empty(t, book.Asks)
}

func TestEngine_BookAggregatesSamePrice(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)
	e.SubmitOrder("carol", models.SideBuy, models.KindLimit, 2, 100)

	book := e.OrderBook()
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 100.0, book.Bids[0].Price)
	assert.Equal(t, 3.0, book.Bids[0].Amount)
	assert.Equal(t, 300.0, book.Bids[0].Total)
}

func TestEngine_BookSorting(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 90)
	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 95)
	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 85)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 110)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 105)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 120)

	book := e.OrderBook()
	require.Len(t, book.Bids, 3)
	require.Len(t, book.Asks, 3)

	// Best bid first, best ask first.
	assert.Equal(t, []float64{95, 90, 85}, []float64{book.Bids[0].Price, book.Bids[1].Price, book.Bids[2].Price})
	assert.Equal(t, []float64{105, 110, 120}, []float64{book.Asks[0].Price, book.Asks[1].Price, book.Asks[2].Price})

	for _, level := range append(book.Bids, book.Asks...) {
		assert.Equal(t, level.Price*level.Amount, level.Total)
	}
}

func TestEngine_TakerGetsMakerPrice(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 95)
	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 1)
	// Price improvement: the buyer paid the resting sell's price.
	assert.Equal(t, 95.0, trades[0].Price)
	assert.Equal(t, models.StatusFilled, buy.Status)
	assert.Equal(t, 95.0, e.CurrentPrice())
}

func TestEngine_SweepsBestPricesFirst(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 102)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 98)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 100)

	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 2.5, 101)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 2)
	// Newest first: 100 traded after 98.
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 98.0, trades[1].Price)

	assert.Equal(t, models.StatusPartial, buy.Status)
	assert.Equal(t, 0.5, buy.Remaining)
	assert.Equal(t, 2.0, buy.Filled)
	assert.Equal(t, 100.0, e.CurrentPrice())

	// The 102 ask never crossed and is untouched.
	book := e.OrderBook()
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 102.0, book.Asks[0].Price)
}

func TestEngine_SellMatchesHighestBidsFirst(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 99)
	e.SubmitOrder("carol", models.SideBuy, models.KindLimit, 1, 101)

	sell := e.SubmitOrder("alice", models.SideSell, models.KindLimit, 2, 100)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 1)
	assert.Equal(t, 101.0, trades[0].Price)
	assert.Equal(t, "carol", trades[0].BuyerID)

	// The 99 bid is below the sell's limit and must not trade.
	assert.Equal(t, models.StatusPartial, sell.Status)
	assert.Equal(t, 1.0, sell.Remaining)
}

func TestEngine_MarketOrderUsesCurrentPrice(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 49000)

	// No price supplied: the taker matches at the market price (50000),
	// which crosses the 49000 ask.
	buy := e.SubmitOrder("bob", models.SideBuy, models.KindMarket, 1, 0)

	assert.Equal(t, 50000.0, buy.Price)
	assert.Equal(t, models.StatusFilled, buy.Status)
	assert.Nil(t, buy.ExpiresAt)

	trades := e.RecentTrades(0)
	require.Len(t, trades, 1)
	assert.Equal(t, 49000.0, trades[0].Price)
	assert.Equal(t, 49000.0, e.CurrentPrice())
}

func TestEngine_LimitOrderRecordsExpiry(t *testing.T) {
	e := newTestEngine()

	order := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 90)
	require.NotNil(t, order.ExpiresAt)
	assert.Equal(t, limitOrderTTL, order.ExpiresAt.Sub(order.CreatedAt))
}

func TestEngine_CancelOrder(t *testing.T) {
	e := newTestEngine()

	order := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 90)

	assert.False(t, e.CancelOrder(order.ID, "mallory"), "foreign user must not cancel")
	assert.False(t, e.CancelOrder("no-such-order", "bob"))

	assert.True(t, e.CancelOrder(order.ID, "bob"))

	cancelled := e.UserOrders("bob")[0]
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Empty(t, e.OrderBook().Bids, "cancelled order must leave the book")

	// Cancel is not repeatable.
	assert.False(t, e.CancelOrder(order.ID, "bob"))
}

func TestEngine_CancelFilledOrder(t *testing.T) {
	e := newTestEngine()

	sell := e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 100)
	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)

	assert.False(t, e.CancelOrder(sell.ID, "alice"))
	assert.Equal(t, models.StatusFilled, e.UserOrders("alice")[0].Status)
}

func TestEngine_CancelledOrderNeverMatches(t *testing.T) {
	e := newTestEngine()

	sell := e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 100)
	require.True(t, e.CancelOrder(sell.ID, "alice"))

	buy := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)
	assert.Equal(t, models.StatusPending, buy.Status)
	assert.Empty(t, e.RecentTrades(0))
}

func TestEngine_UserOrdersNewestFirst(t *testing.T) {
	e := newTestEngine()

	first := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 90)
	second := e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 91)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 200)

	orders := e.UserOrders("bob")
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

func TestEngine_RecentTradesLimit(t *testing.T) {
	e := newTestEngine()

	for i := 0; i < 5; i++ {
		e.SubmitOrder("alice", models.SideSell, models.KindLimit, 1, 100)
		e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 1, 100)
	}

	assert.Len(t, e.RecentTrades(0), 5)
	assert.Len(t, e.RecentTrades(10), 5)

	trades := e.RecentTrades(2)
	require.Len(t, trades, 2)
	assert.False(t, trades[0].ExecutedAt.Before(trades[1].ExecutedAt), "trades must be newest first")
}

func TestEngine_Invariants(t *testing.T) {
	e := newTestEngine()

	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 3, 100)
	e.SubmitOrder("alice", models.SideSell, models.KindLimit, 2, 101)
	e.SubmitOrder("bob", models.SideBuy, models.KindLimit, 4, 101)
	e.SubmitOrder("carol", models.SideBuy, models.KindLimit, 1, 99)

	for _, userID := range []string{"alice", "bob", "carol"} {
		for _, o := range e.UserOrders(userID) {
			assert.GreaterOrEqual(t, o.Remaining, 0.0)
			assert.InDelta(t, o.Amount, o.Filled+o.Remaining, 1e-9)

			switch {
			case o.Remaining == 0:
				assert.Equal(t, models.StatusFilled, o.Status)
			case o.Filled > 0:
				assert.Equal(t, models.StatusPartial, o.Status)
			default:
				assert.Equal(t, models.StatusPending, o.Status)
			}
		}
	}

	// Every trade executed at the maker's own price: a resting sell at 100
	// or 101, both within bob's 101 limit.
	for _, trade := range e.RecentTrades(0) {
		assert.Contains(t, []float64{100, 101}, trade.Price)
	}
}

func TestEngine_ConcurrentSubmissions(t *testing.T) {
	e := newTestEngine()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			side := models.SideBuy
			user := "bob"
			if w%2 == 0 {
				side = models.SideSell
				user = "alice"
			}
			for i := 0; i < perWorker; i++ {
				e.SubmitOrder(user, side, models.KindLimit, 1, 100)
			}
		}(w)
	}
	wg.Wait()

	var totalRemaining float64
	for _, user := range []string{"alice", "bob"} {
		for _, o := range e.UserOrders(user) {
			assert.GreaterOrEqual(t, o.Remaining, 0.0)
			assert.InDelta(t, o.Amount, o.Filled+o.Remaining, 1e-9)
			totalRemaining += o.Remaining
		}
	}

	// Equal buy and sell volume at one price must fully cross.
	assert.Equal(t, 0.0, totalRemaining)
	assert.Len(t, e.RecentTrades(0), workers/2*perWorker)
}
