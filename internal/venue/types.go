package venue

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biplawofficial/tradeterm/internal/domain"
)

// envelope is the uniform response wrapper used by every venue endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PlaceOrderParams describes a new order. Price is required for limit
// orders and ignored for market orders.
type PlaceOrderParams struct {
	Pair     string
	Side     domain.Side
	Type     domain.OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Leverage decimal.Decimal
}

// placeOrderBody is the wire shape of an order-create request.
type placeOrderBody struct {
	Timestamp int64          `json:"timestamp"`
	Order     placeOrderWire `json:"order"`
}

type placeOrderWire struct {
	Pair          string          `json:"pair"`
	Side          string          `json:"side"`
	OrderType     string          `json:"order_type"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	// Price is a pointer so market-order bodies omit the field entirely;
	// omitempty alone never skips a struct value.
	Price    *decimal.Decimal `json:"price,omitempty"`
	Leverage decimal.Decimal  `json:"leverage"`
}

type cancelOrderBody struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

type exitPositionBody struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

// ScheduleParams describes a deferred order to be executed at a future
// point in time.
type ScheduleParams struct {
	Pair      string
	Side      domain.Side
	Type      domain.OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Leverage  decimal.Decimal
	ExecuteAt time.Time
}

type scheduleTradeBody struct {
	Timestamp int64             `json:"timestamp"`
	Trade     scheduleTradeWire `json:"trade"`
}

type scheduleTradeWire struct {
	Pair          string           `json:"pair"`
	Side          string           `json:"side"`
	OrderType     string           `json:"order_type"`
	TotalQuantity decimal.Decimal  `json:"total_quantity"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Leverage      decimal.Decimal  `json:"leverage"`
	ExecuteAt     string           `json:"execute_at"`
}

type cancelScheduleBody struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

type listScheduleBody struct {
	Timestamp int64 `json:"timestamp"`
}
