package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// NormalizeOrderType 将 venue 的订单类型字符串归一化。
// venue 线上格式为 "market_order" / "limit_order"，核心内部只用 market / limit。
func NormalizeOrderType(raw string) OrderType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "market", "market_order":
		return OrderTypeMarket
	case "limit", "limit_order":
		return OrderTypeLimit
	default:
		return OrderType(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// Wire 返回订单类型的 venue 线上格式
func (t OrderType) Wire() string {
	switch t {
	case OrderTypeMarket:
		return "market_order"
	case OrderTypeLimit:
		return "limit_order"
	default:
		return string(t)
	}
}

// OrderStatus 订单状态（venue 状态字符串归一化后的闭合枚举）
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	// OrderStatusUnknown 表示 venue 返回了枚举之外的状态。
	// 未知状态按非终态处理，不阻止后续 feed 更新覆盖。
	OrderStatusUnknown OrderStatus = "unknown"
)

// NormalizeOrderStatus 将 venue 返回的任意状态字符串归一化为闭合枚举。
// venue 对同一终态使用多个同义词（completed/executed/canceled 等），
// 大小写不敏感。归一化只发生在这一处边界，消费方只比较枚举值。
func NormalizeOrderStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "init", "initial":
		return OrderStatusOpen
	case "partially_filled", "partially filled", "partial_entry":
		return OrderStatusPartial
	case "filled", "completed", "executed":
		return OrderStatusFilled
	case "cancelled", "canceled", "partial_cancelled", "partially_cancelled":
		return OrderStatusCancelled
	case "rejected":
		return OrderStatusRejected
	default:
		return OrderStatusUnknown
	}
}

// IsTerminal 检查状态是否为终态（filled/cancelled/rejected）
// 终态订单不再提供撤单入口
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order 订单镜像（server-owned，客户端只读）
//
// 字段值完全来自 order-history feed；客户端唯一附加的本地状态是
// CancelRequested（撤单意图，等待 feed 确认）。
type Order struct {
	ID            string          `json:"id"`
	Pair          string          `json:"pair"`
	Side          Side            `json:"side"`
	OrderType     OrderType       `json:"order_type"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Price         decimal.Decimal `json:"price"`
	Leverage      decimal.Decimal `json:"leverage"`
	Status        OrderStatus     `json:"status"`
	RawStatus     string          `json:"-"` // venue 原始状态字符串（展示用）

	// CancelRequested 本地撤单意图。feed 是唯一事实来源，
	// 这个标记只用于在确认到达前禁用重复撤单。
	CancelRequested bool `json:"-"`
}

// UnmarshalJSON 在解码边界做归一化：side/order_type/status 全部转为
// 闭合枚举，数值字段兼容字符串和数字两种线上表示。
func (o *Order) UnmarshalJSON(b []byte) error {
	type wire struct {
		ID            string          `json:"id"`
		Pair          string          `json:"pair"`
		Side          string          `json:"side"`
		OrderType     string          `json:"order_type"`
		TotalQuantity decimal.Decimal `json:"total_quantity"`
		Price         decimal.Decimal `json:"price"`
		Leverage      decimal.Decimal `json:"leverage"`
		Status        string          `json:"status"`
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	o.ID = w.ID
	o.Pair = w.Pair
	o.Side = Side(strings.ToLower(strings.TrimSpace(w.Side)))
	o.OrderType = NormalizeOrderType(w.OrderType)
	o.TotalQuantity = w.TotalQuantity
	o.Price = w.Price
	o.Leverage = w.Leverage
	o.Status = NormalizeOrderStatus(w.Status)
	o.RawStatus = w.Status
	return nil
}

// IsLimit 检查是否为限价单
func (o *Order) IsLimit() bool {
	return o.OrderType == OrderTypeLimit
}

// Cancellable 检查订单是否还能发起撤单（非终态且没有在途撤单意图）
func (o *Order) Cancellable() bool {
	return !o.Status.IsTerminal() && !o.CancelRequested
}
