package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/pkg/sigchan"
)

// 每个 feed 一个 reconciler：把入站 envelope 对账到类型化视图状态。
// 对账规则（所有 reconciler 共享）：
//   - success=true 且带 data：整体替换视图状态（每条消息都是全量快照）
//   - success=false 或缺 data：保留 last-known-good，只记录错误文本
//   - 解析失败的消息：忽略（Channel 已按 Raw 透传，这里只记日志）
//   - 逻辑关闭后到达的消息：直接丢弃（closed 标记，与通道关闭时序无关）

// PositionsView 仓位 feed 的视图状态
type PositionsView struct {
	mu        sync.RWMutex
	positions []domain.Position
	connected bool
	stale     bool
	closed    bool
	lastError string
	updatedAt time.Time

	// C 在每次视图状态变化后收到信号
	C *sigchan.Chan

	log *logrus.Entry
}

// NewPositionsView 创建仓位视图
func NewPositionsView() *PositionsView {
	return &PositionsView{
		C:   sigchan.New(1),
		log: logrus.WithField("component", "positions_view"),
	}
}

// Apply 应用一条入站消息
func (v *PositionsView) Apply(msg Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if msg.IsMalformed() {
		v.mu.Unlock()
		v.log.Debugf("忽略无法解析的消息 (length=%d)", len(msg.Raw))
		return
	}
	env := msg.Envelope
	if !env.HasData() {
		v.lastError = env.Error
		v.mu.Unlock()
		return
	}

	var positions []domain.Position
	if err := json.Unmarshal(env.Data, &positions); err != nil {
		v.mu.Unlock()
		v.log.Warnf("仓位数据解码失败，保留当前状态: %v", err)
		return
	}

	v.positions = positions
	v.connected = true
	v.stale = false
	v.lastError = ""
	v.updatedAt = time.Now()
	v.mu.Unlock()

	v.C.Emit()
}

// SetConnected 由通道生命周期事件驱动（open/close/error），与消息内容无关
func (v *PositionsView) SetConnected(connected bool) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.connected = connected
	v.mu.Unlock()
	v.C.Emit()
}

// Restore 用持久化的快照预热视图，标记为 stale 直到第一条实时消息到达
func (v *PositionsView) Restore(positions []domain.Position) {
	v.mu.Lock()
	v.positions = positions
	v.stale = true
	v.mu.Unlock()
	v.C.Emit()
}

// Close 逻辑关闭：之后到达的消息一律丢弃
func (v *PositionsView) Close() {
	v.mu.Lock()
	v.closed = true
	v.connected = false
	v.mu.Unlock()
	v.C.Emit()
}

// Snapshot 返回当前视图状态的副本（消费方只读，不会看到原地修改）
func (v *PositionsView) Snapshot() []domain.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Position, len(v.positions))
	copy(out, v.positions)
	return out
}

// Connected 返回连接状态
func (v *PositionsView) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// Stale 返回视图是否来自持久化缓存而非实时 feed
func (v *PositionsView) Stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stale
}

// LastError 返回最近一条 venue 上报的错误文本
func (v *PositionsView) LastError() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastError
}

// UpdatedAt 返回最近一次成功对账的时间
func (v *PositionsView) UpdatedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updatedAt
}

// OrderbookView 订单簿 feed 的视图状态
type OrderbookView struct {
	mu        sync.RWMutex
	book      domain.OrderbookSnapshot
	connected bool
	stale     bool
	closed    bool
	lastError string
	updatedAt time.Time

	C *sigchan.Chan

	log *logrus.Entry
}

// NewOrderbookView 创建订单簿视图
func NewOrderbookView() *OrderbookView {
	return &OrderbookView{
		C:   sigchan.New(1),
		log: logrus.WithField("component", "orderbook_view"),
	}
}

// Apply 应用一条入站消息
func (v *OrderbookView) Apply(msg Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if msg.IsMalformed() {
		v.mu.Unlock()
		v.log.Debugf("忽略无法解析的消息 (length=%d)", len(msg.Raw))
		return
	}
	env := msg.Envelope
	if !env.HasData() {
		v.lastError = env.Error
		v.mu.Unlock()
		return
	}

	var book domain.OrderbookSnapshot
	if err := json.Unmarshal(env.Data, &book); err != nil {
		v.mu.Unlock()
		v.log.Warnf("订单簿数据解码失败，保留当前状态: %v", err)
		return
	}

	v.book = book
	v.connected = true
	v.stale = false
	v.lastError = ""
	v.updatedAt = time.Now()
	v.mu.Unlock()

	v.C.Emit()
}

// SetConnected 由通道生命周期事件驱动
func (v *OrderbookView) SetConnected(connected bool) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.connected = connected
	v.mu.Unlock()
	v.C.Emit()
}

// Restore 用持久化的快照预热视图
func (v *OrderbookView) Restore(book domain.OrderbookSnapshot) {
	v.mu.Lock()
	v.book = book
	v.stale = true
	v.mu.Unlock()
	v.C.Emit()
}

// Close 逻辑关闭
func (v *OrderbookView) Close() {
	v.mu.Lock()
	v.closed = true
	v.connected = false
	v.mu.Unlock()
	v.C.Emit()
}

// Snapshot 返回当前订单簿快照的副本
func (v *OrderbookView) Snapshot() domain.OrderbookSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := domain.OrderbookSnapshot{
		Bids: make(map[string]decimal.Decimal, len(v.book.Bids)),
		Asks: make(map[string]decimal.Decimal, len(v.book.Asks)),
	}
	for p, q := range v.book.Bids {
		out.Bids[p] = q
	}
	for p, q := range v.book.Asks {
		out.Asks[p] = q
	}
	return out
}

// Connected 返回连接状态
func (v *OrderbookView) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// Stale 返回视图是否来自持久化缓存
func (v *OrderbookView) Stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stale
}

// LastError 返回最近一条错误文本
func (v *OrderbookView) LastError() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastError
}

// DefaultCancelIntentTTL 撤单意图的最长保留时间。翻页后订单可能
// 不再出现在任何快照里，意图等不到终态确认，到期直接清理。
const DefaultCancelIntentTTL = 2 * time.Minute

// OrdersView 订单历史 feed 的视图状态（当前页）
//
// 除了 feed 镜像之外还维护本地撤单意图：意图跨全量替换存活，
// 直到 feed 证实订单进入终态，或超过 TTL（订单翻页离开视图时）。
type OrdersView struct {
	mu            sync.RWMutex
	orders        []domain.Order
	pendingCancel map[string]time.Time // 订单 ID -> 撤单请求时间
	cancelTTL     time.Duration
	connected     bool
	stale         bool
	closed        bool
	lastError     string
	updatedAt     time.Time

	C *sigchan.Chan

	log *logrus.Entry
}

// NewOrdersView 创建订单历史视图
func NewOrdersView() *OrdersView {
	return &OrdersView{
		pendingCancel: make(map[string]time.Time),
		cancelTTL:     DefaultCancelIntentTTL,
		C:             sigchan.New(1),
		log:           logrus.WithField("component", "orders_view"),
	}
}

// Apply 应用一条入站消息
func (v *OrdersView) Apply(msg Message) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if msg.IsMalformed() {
		v.mu.Unlock()
		v.log.Debugf("忽略无法解析的消息 (length=%d)", len(msg.Raw))
		return
	}
	env := msg.Envelope
	if !env.HasData() {
		v.lastError = env.Error
		v.mu.Unlock()
		return
	}

	var orders []domain.Order
	if err := json.Unmarshal(env.Data, &orders); err != nil {
		v.mu.Unlock()
		v.log.Warnf("订单数据解码失败，保留当前状态: %v", err)
		return
	}

	// 过期意图先清理：订单翻出当前页后不会再出现在快照里，
	// 意图永远等不到终态确认
	for id, at := range v.pendingCancel {
		if time.Since(at) > v.cancelTTL {
			delete(v.pendingCancel, id)
		}
	}

	// 撤单意图覆盖到新快照上；feed 已证实终态的订单清除意图
	for i := range orders {
		if _, ok := v.pendingCancel[orders[i].ID]; ok {
			if orders[i].Status.IsTerminal() {
				delete(v.pendingCancel, orders[i].ID)
			} else {
				orders[i].CancelRequested = true
			}
		}
	}

	v.orders = orders
	v.connected = true
	v.stale = false
	v.lastError = ""
	v.updatedAt = time.Now()
	v.mu.Unlock()

	v.C.Emit()
}

// MarkCancelRequested 记录一条本地撤单意图
func (v *OrdersView) MarkCancelRequested(orderID string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.pendingCancel[orderID] = time.Now()
	for i := range v.orders {
		if v.orders[i].ID == orderID {
			v.orders[i].CancelRequested = true
		}
	}
	v.mu.Unlock()
	v.C.Emit()
}

// Get 按 ID 查找当前页中的订单
func (v *OrdersView) Get(orderID string) (domain.Order, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, o := range v.orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return domain.Order{}, false
}

// SetConnected 由通道生命周期事件驱动
func (v *OrdersView) SetConnected(connected bool) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.connected = connected
	v.mu.Unlock()
	v.C.Emit()
}

// Restore 用持久化的快照预热视图
func (v *OrdersView) Restore(orders []domain.Order) {
	v.mu.Lock()
	v.orders = orders
	v.stale = true
	v.mu.Unlock()
	v.C.Emit()
}

// Close 逻辑关闭
func (v *OrdersView) Close() {
	v.mu.Lock()
	v.closed = true
	v.connected = false
	v.mu.Unlock()
	v.C.Emit()
}

// Snapshot 返回当前页订单的副本
func (v *OrdersView) Snapshot() []domain.Order {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Order, len(v.orders))
	copy(out, v.orders)
	return out
}

// Connected 返回连接状态
func (v *OrdersView) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// Stale 返回视图是否来自持久化缓存
func (v *OrdersView) Stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stale
}

// LastError 返回最近一条错误文本
func (v *OrdersView) LastError() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastError
}
