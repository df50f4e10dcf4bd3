package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus 定时交易状态
//
// 状态机：pending -> executed（server 到点执行）
//
//	pending -> failed（server 侧下单失败）
//	pending -> cancelled（客户端取消，仅 pending 可取消）
//
// 三个非 pending 状态都是终态，不可逆。
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusExecuted  ScheduleStatus = "executed"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
	// ScheduleStatusUnknown 表示 server 返回了枚举之外的状态
	// （例如执行瞬间的 "executing" 过渡态）。按惰性处理：原样展示，
	// 既不报错也不允许取消。
	ScheduleStatusUnknown ScheduleStatus = "unknown"
)

// NormalizeScheduleStatus 将 server 返回的状态字符串归一化为闭合枚举
func NormalizeScheduleStatus(raw string) ScheduleStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return ScheduleStatusPending
	case "executed":
		return ScheduleStatusExecuted
	case "failed":
		return ScheduleStatusFailed
	case "cancelled", "canceled":
		return ScheduleStatusCancelled
	default:
		return ScheduleStatusUnknown
	}
}

// IsTerminal 检查是否为终态（executed/failed/cancelled）
func (s ScheduleStatus) IsTerminal() bool {
	return s == ScheduleStatusExecuted || s == ScheduleStatusFailed || s == ScheduleStatusCancelled
}

// ScheduledTrade 定时交易
//
// 由客户端请求创建，之后除取消外所有状态迁移都由 server 驱动。
type ScheduledTrade struct {
	ID        string          `json:"id"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	OrderType OrderType       `json:"order_type"`
	Price     decimal.Decimal `json:"price"`
	Leverage  decimal.Decimal `json:"leverage"`
	ExecuteAt time.Time       `json:"execute_at"`
	Status    ScheduleStatus  `json:"status"`
	RawStatus string          `json:"-"` // server 原始状态字符串（展示用）
	CreatedAt time.Time       `json:"created_at"`
}

// Cancellable 检查定时交易是否还能取消（仅 pending）
func (t *ScheduledTrade) Cancellable() bool {
	return t.Status == ScheduleStatusPending
}

// timestampLayouts server 传输 execute_at 的几种 ISO-8601 变体。
// 原始格式带不带时区、带不带秒都出现过。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp 解析 venue 传输的 ISO-8601 风格时间字符串。
// 无时区的格式按本地时间解释（与 server 行为一致）。
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳 %q", s)
}

// UnmarshalJSON 在解码边界归一化状态并解析时间字符串
func (t *ScheduledTrade) UnmarshalJSON(b []byte) error {
	type wire struct {
		ID        string          `json:"id"`
		Side      string          `json:"side"`
		Quantity  decimal.Decimal `json:"quantity"`
		OrderType string          `json:"order_type"`
		Price     decimal.Decimal `json:"price"`
		Leverage  decimal.Decimal `json:"leverage"`
		ExecuteAt string          `json:"execute_at"`
		Status    string          `json:"status"`
		CreatedAt string          `json:"created_at"`
	}
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	t.ID = w.ID
	t.Side = Side(strings.ToLower(strings.TrimSpace(w.Side)))
	t.Quantity = w.Quantity
	t.OrderType = NormalizeOrderType(w.OrderType)
	t.Price = w.Price
	t.Leverage = w.Leverage
	t.Status = NormalizeScheduleStatus(w.Status)
	t.RawStatus = w.Status

	if w.ExecuteAt != "" {
		ts, err := ParseTimestamp(w.ExecuteAt)
		if err != nil {
			return err
		}
		t.ExecuteAt = ts
	}
	if w.CreatedAt != "" {
		// created_at 只做展示，解析失败不视为坏消息
		if ts, err := ParseTimestamp(w.CreatedAt); err == nil {
			t.CreatedAt = ts
		}
	}
	return nil
}
