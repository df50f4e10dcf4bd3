// Package book 把 orderbook 推送的原始价位表聚合成展示用的阶梯（ladder）。
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/biplawofficial/tradeterm/internal/domain"
)

// DefaultDepth 阶梯默认档位数
const DefaultDepth = 10

// Level 一档价位
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Ladder 有序的价位阶梯。买盘价格降序（最优买价在前），
// 卖盘价格升序（最优卖价在前）。
type Ladder []Level

// Best 返回最优一档；空阶梯返回 false
func (l Ladder) Best() (Level, bool) {
	if len(l) == 0 {
		return Level{}, false
	}
	return l[0], true
}

// TotalQuantity 阶梯内数量合计
func (l Ladder) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lv := range l {
		total = total.Add(lv.Quantity)
	}
	return total
}

// Book 聚合后的双边盘口
type Book struct {
	Bids Ladder // 价格降序
	Asks Ladder // 价格升序
}

// Spread 最优买卖价差。任一边为空时返回 false。
func (b Book) Spread() (decimal.Decimal, bool) {
	bid, okB := b.Bids.Best()
	ask, okA := b.Asks.Best()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Mid 中间价。任一边为空时返回 false。
func (b Book) Mid() (decimal.Decimal, bool) {
	bid, okB := b.Bids.Best()
	ask, okA := b.Asks.Best()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Aggregate 把快照聚合成 Top-N 盘口。一边为空时对应阶梯为空，
// 这是合法状态而不是错误。
func Aggregate(snap domain.OrderbookSnapshot, depth int) Book {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return Book{
		Bids: buildLadder(snap.Bids, depth, true),
		Asks: buildLadder(snap.Asks, depth, false),
	}
}

// buildLadder 把 价格字符串 -> 数量 的价位表排序截断成阶梯。
// 价格解析失败的条目直接跳过，不污染剩余档位。
func buildLadder(side map[string]decimal.Decimal, depth int, desc bool) Ladder {
	if len(side) == 0 {
		return Ladder{}
	}

	levels := make(Ladder, 0, len(side))
	for priceStr, qty := range side {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		levels = append(levels, Level{Price: price, Quantity: qty})
	}

	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})

	if len(levels) > depth {
		levels = levels[:depth]
	}
	return levels
}
