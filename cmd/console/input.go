package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/biplawofficial/tradeterm/internal/domain"
)

// 提示行输入解析。语法贴近口头下单：
//
//	下单:      buy market 1.5 | sell limit 2 101.25
//	定时:      buy limit 1 101.25 @ 2026-09-01T10:00
//	撤单/平仓: 行号（列表中 1 起始的序号）或 ID 前缀
type orderInput struct {
	Side     domain.Side
	Type     domain.OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

func parseOrderInput(s string) (orderInput, error) {
	var in orderInput
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return in, errors.New("格式: buy|sell market|limit 数量 [价格]")
	}

	switch strings.ToLower(fields[0]) {
	case "buy", "b":
		in.Side = domain.SideBuy
	case "sell", "s":
		in.Side = domain.SideSell
	default:
		return in, errors.Errorf("未知方向 %q", fields[0])
	}

	switch domain.NormalizeOrderType(fields[1]) {
	case domain.OrderTypeMarket:
		in.Type = domain.OrderTypeMarket
	case domain.OrderTypeLimit:
		in.Type = domain.OrderTypeLimit
	default:
		return in, errors.Errorf("未知类型 %q", fields[1])
	}

	qty, err := decimal.NewFromString(fields[2])
	if err != nil {
		return in, errors.Errorf("数量 %q 无法解析", fields[2])
	}
	in.Quantity = qty

	if len(fields) >= 4 {
		price, err := decimal.NewFromString(fields[3])
		if err != nil {
			return in, errors.Errorf("价格 %q 无法解析", fields[3])
		}
		in.Price = price
	}
	if in.Type == domain.OrderTypeLimit && in.Price.Sign() <= 0 {
		return in, errors.New("限价单需要价格")
	}
	return in, nil
}

// parseScheduleInput 在下单语法后面用 @ 接执行时间
func parseScheduleInput(s string) (orderInput, time.Time, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return orderInput{}, time.Time{}, errors.New("格式: buy|sell market|limit 数量 [价格] @ 执行时间")
	}
	in, err := parseOrderInput(strings.TrimSpace(parts[0]))
	if err != nil {
		return orderInput{}, time.Time{}, err
	}
	at, err := domain.ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return orderInput{}, time.Time{}, errors.Errorf("执行时间 %q 无法解析", strings.TrimSpace(parts[1]))
	}
	return in, at, nil
}

// resolveID 把行号或 ID 前缀解析成唯一的完整 ID
func resolveID(input string, ids []string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("输入行号或 ID")
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(ids) {
			return "", errors.Errorf("行号 %d 超出范围", n)
		}
		return ids[n-1], nil
	}
	var match string
	for _, id := range ids {
		if strings.HasPrefix(id, input) {
			if match != "" && match != id {
				return "", errors.Errorf("%q 匹配到多个 ID", input)
			}
			match = id
		}
	}
	if match == "" {
		return "", errors.Errorf("没有匹配 %q 的条目", input)
	}
	return match, nil
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	return ids
}

func positionIDs(positions []domain.Position) []string {
	ids := make([]string, len(positions))
	for i := range positions {
		ids[i] = positions[i].ID
	}
	return ids
}

func tradeIDs(trades []domain.ScheduledTrade) []string {
	ids := make([]string, len(trades))
	for i := range trades {
		ids[i] = trades[i].ID
	}
	return ids
}
