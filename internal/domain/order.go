package domain

import "time"

// OrderSide is the direction of a coin/fiat exchange order.
type OrderSide string

const (
	// OrderSideBuy spends fiat to acquire coin.
	OrderSideBuy OrderSide = "buy"
	// OrderSideSell sells coin for fiat.
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes immediate execution from a resting limit order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an exchange order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Order is a coin/fiat exchange order executed against the single reference
// price. Market orders are created already filled; limit orders rest as
// pending with their input amount reserved until a batch execution pass
// matches them against a fresh price, the user cancels, or a maintenance job
// expires them.
type Order struct {
	ID         string
	UserID     string
	Side       OrderSide
	Type       OrderType
	AmountIn   float64  // amount debited from the input currency
	CurrencyIn Currency // fiat for buys, coin for sells
	AmountOut  float64  // set on fill
	LimitPrice float64  // zero for market orders
	Price      float64  // reference price at execution
	Fee        float64  // fee charged, in the input currency
	Status     OrderStatus
	CreatedAt  time.Time
	ExecutedAt *time.Time
}
