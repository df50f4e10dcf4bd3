package domain

import (
	"github.com/shopspring/decimal"
)

// OrderbookSnapshot 订单簿快照原始数据
//
// feed 每条消息整体替换一次快照（不做增量 diff）。价格作为字符串 key，
// 到达时不保证有序也不限制大小；排序和截断由聚合器负责。
type OrderbookSnapshot struct {
	Bids map[string]decimal.Decimal `json:"bids"`
	Asks map[string]decimal.Decimal `json:"asks"`
}

// IsEmpty 检查快照是否两侧都为空
func (s *OrderbookSnapshot) IsEmpty() bool {
	return s == nil || (len(s.Bids) == 0 && len(s.Asks) == 0)
}
