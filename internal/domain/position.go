package domain

import (
	"github.com/shopspring/decimal"
)

// SideLabel 仓位方向标签（由 ActivePos 符号推导）
type SideLabel string

const (
	SideLabelLong  SideLabel = "LONG"
	SideLabelShort SideLabel = "SHORT"
	SideLabelFlat  SideLabel = "FLAT"
)

// Position 仓位镜像（完全 server-owned）
//
// ActivePos 为带符号数量：正数=多头，负数=空头，零=已平。
// 客户端从不直接修改仓位，只能通过 venue 请求平仓。
type Position struct {
	ID        string          `json:"id"`
	Pair      string          `json:"pair"`
	ActivePos decimal.Decimal `json:"active_pos"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	MarkPrice decimal.Decimal `json:"mark_price"`
	Leverage  decimal.Decimal `json:"leverage"`
}

// PnL 计算未实现盈亏：(mark_price - avg_price) * active_pos
func (p *Position) PnL() decimal.Decimal {
	return p.MarkPrice.Sub(p.AvgPrice).Mul(p.ActivePos)
}

// SideLabel 由 ActivePos 符号推导方向标签
func (p *Position) SideLabel() SideLabel {
	switch p.ActivePos.Sign() {
	case 1:
		return SideLabelLong
	case -1:
		return SideLabelShort
	default:
		return SideLabelFlat
	}
}

// Size 返回仓位绝对数量（展示用）
func (p *Position) Size() decimal.Decimal {
	return p.ActivePos.Abs()
}

// IsOpen 检查仓位是否仍有持仓
func (p *Position) IsOpen() bool {
	return !p.ActivePos.IsZero()
}
