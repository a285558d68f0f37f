package models

import "time"

// User represents a registered user
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind distinguishes market orders from limit orders
type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
)

// OrderStatus is the lifecycle state of an order.
// pending -> partial -> filled, with cancelled reachable from pending
// or partial. filled and cancelled are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// Open reports whether an order in this status can still match or be cancelled.
func (s OrderStatus) Open() bool {
	return s == StatusPending || s == StatusPartial
}

// Order represents a buy or sell order.
// Price is the effective matching price: the submitted limit price, or the
// market price captured at submission time for market orders.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Side      Side        `json:"side"`
	Kind      OrderKind   `json:"kind"`
	Price     float64     `json:"price"`     // Price in USD
	Amount    float64     `json:"amount"`    // Requested quantity in BTC
	Filled    float64     `json:"filled"`    // Quantity matched so far
	Remaining float64     `json:"remaining"` // Amount - Filled
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"` // Limit orders only; recorded, never enforced
}

// Trade represents an executed trade
type Trade struct {
	ID          string    `json:"id"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id"`
	Price       float64   `json:"price"`
	Amount      float64   `json:"amount"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// BookLevel is one aggregated price level of the order book
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Total  float64 `json:"total"` // Price * Amount
}

// OrderBook is a point-in-time aggregation of resting orders.
// Bids are sorted best (highest) price first, asks best (lowest) first.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}
