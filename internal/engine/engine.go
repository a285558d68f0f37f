package engine

import (
	"sort"
	"sync"
	"time"

	"coinex/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// limitOrderTTL is recorded on limit orders as ExpiresAt. Expiry is
// informational only: no sweep ever transitions an order based on it.
const limitOrderTTL = 24 * time.Hour

// Engine owns all order and trade state and runs the matching algorithm.
// A single mutex serialises submissions, cancellations and reads, so callers
// never observe a half-applied match.
type Engine struct {
	mu     sync.Mutex
	orders []*models.Order          // submission order, never removed
	byID   map[string]*models.Order // id index into orders
	trades []models.Trade           // append-only trade log
	price  float64                  // last traded price
	log    zerolog.Logger
}

// New creates an engine with the given starting market price.
func New(initialPrice float64, logger zerolog.Logger) *Engine {
	return &Engine{
		byID:  make(map[string]*models.Order),
		price: initialPrice,
		log:   logger,
	}
}

// SubmitOrder creates an order and immediately matches it against the book.
// limitPrice <= 0 means no price was supplied: the order matches at the
// current market price. Input validation (amount > 0, limit orders carrying a
// price) is the caller's responsibility.
//
// The returned order is a snapshot taken after matching completed.
func (e *Engine) SubmitOrder(userID string, side models.Side, kind models.OrderKind, amount, limitPrice float64) models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	price := limitPrice
	if price <= 0 {
		price = e.price
	}

	order := &models.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Side:      side,
		Kind:      kind,
		Price:     price,
		Amount:    amount,
		Filled:    0,
		Remaining: amount,
		Status:    models.StatusPending,
		CreatedAt: now,
	}
	if kind == models.KindLimit {
		expiresAt := now.Add(limitOrderTTL)
		order.ExpiresAt = &expiresAt
	}

	e.orders = append(e.orders, order)
	e.byID[order.ID] = order

	e.match(order)

	return *order
}

// match crosses the taker against resting orders on the opposite side.
// Only the taker actively seeks matches; resting orders are matched passively
// at their own price.
func (e *Engine) match(taker *models.Order) {
	opposite := models.SideSell
	if taker.Side == models.SideSell {
		opposite = models.SideBuy
	}

	var makers []*models.Order
	for _, o := range e.orders {
		if o.Side == opposite && o.Status.Open() && o.Remaining > 0 {
			makers = append(makers, o)
		}
	}

	// Best price for the taker first: cheapest asks for a buy, highest bids
	// for a sell. Stable so equal prices keep submission order.
	sort.SliceStable(makers, func(i, j int) bool {
		if taker.Side == models.SideBuy {
			return makers[i].Price < makers[j].Price
		}
		return makers[i].Price > makers[j].Price
	})

	for _, maker := range makers {
		if taker.Remaining <= 0 {
			break
		}
		if !crosses(taker, maker) {
			continue
		}

		qty := taker.Remaining
		if maker.Remaining < qty {
			qty = maker.Remaining
		}

		// The resting order's price is the execution price.
		trade := models.Trade{
			ID:         uuid.NewString(),
			Price:      maker.Price,
			Amount:     qty,
			ExecutedAt: time.Now(),
		}
		if taker.Side == models.SideBuy {
			trade.BuyOrderID, trade.BuyerID = taker.ID, taker.UserID
			trade.SellOrderID, trade.SellerID = maker.ID, maker.UserID
		} else {
			trade.BuyOrderID, trade.BuyerID = maker.ID, maker.UserID
			trade.SellOrderID, trade.SellerID = taker.ID, taker.UserID
		}
		e.trades = append(e.trades, trade)

		fill(taker, qty)
		fill(maker, qty)
		e.price = trade.Price

		e.log.Info().
			Str("buy_order", trade.BuyOrderID).
			Str("sell_order", trade.SellOrderID).
			Float64("price", trade.Price).
			Float64("amount", trade.Amount).
			Msg("trade executed")
	}
}

// crosses reports whether the taker's price reaches the maker's price.
func crosses(taker, maker *models.Order) bool {
	if taker.Side == models.SideBuy {
		return taker.Price >= maker.Price
	}
	return taker.Price <= maker.Price
}

// fill applies a matched quantity to an order and advances its status.
func fill(o *models.Order, qty float64) {
	o.Filled += qty
	o.Remaining -= qty
	switch {
	case o.Remaining <= 0:
		o.Remaining = 0
		o.Status = models.StatusFilled
	case o.Filled > 0:
		o.Status = models.StatusPartial
	}
}

// CancelOrder transitions an open order to cancelled. It returns false, with
// no state change, if the order does not exist, belongs to another user, or
// is already filled or cancelled.
func (e *Engine) CancelOrder(orderID, userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.byID[orderID]
	if !ok || order.UserID != userID || !order.Status.Open() {
		return false
	}
	order.Status = models.StatusCancelled
	return true
}

// OrderBook aggregates resting orders into price levels. The aggregation is
// rebuilt from scratch on every call so it always reflects the latest state.
func (e *Engine) OrderBook() models.OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()

	bidLevels := make(map[float64]*models.BookLevel)
	askLevels := make(map[float64]*models.BookLevel)
	for _, o := range e.orders {
		if !o.Status.Open() || o.Remaining <= 0 {
			continue
		}
		levels := bidLevels
		if o.Side == models.SideSell {
			levels = askLevels
		}
		level, ok := levels[o.Price]
		if !ok {
			level = &models.BookLevel{Price: o.Price}
			levels[o.Price] = level
		}
		level.Amount += o.Remaining
		level.Total = level.Price * level.Amount
	}

	book := models.OrderBook{
		Bids: make([]models.BookLevel, 0, len(bidLevels)),
		Asks: make([]models.BookLevel, 0, len(askLevels)),
	}
	for _, level := range bidLevels {
		book.Bids = append(book.Bids, *level)
	}
	for _, level := range askLevels {
		book.Asks = append(book.Asks, *level)
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book
}

// UserOrders returns all orders owned by userID, newest first.
func (e *Engine) UserOrders(userID string) []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var orders []models.Order
	for i := len(e.orders) - 1; i >= 0; i-- {
		if e.orders[i].UserID == userID {
			orders = append(orders, *e.orders[i])
		}
	}
	return orders
}

// RecentTrades returns up to limit trades, newest first. A non-positive
// limit returns all trades.
func (e *Engine) RecentTrades(limit int) []models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	trades := make([]models.Trade, 0, n)
	for i := len(e.trades) - 1; i >= len(e.trades)-n; i-- {
		trades = append(trades, e.trades[i])
	}
	return trades
}

// CurrentPrice returns the price of the most recent trade, or the initial
// price if nothing has traded yet.
func (e *Engine) CurrentPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price
}
