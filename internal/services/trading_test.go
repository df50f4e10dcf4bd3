package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/feed"
	"github.com/biplawofficial/tradeterm/internal/venue"
	"github.com/biplawofficial/tradeterm/pkg/config"
)

// fakeOrderGateway 记录所有调用的假 venue
type fakeOrderGateway struct {
	placed    []venue.PlaceOrderParams
	cancelled []string
	exited    []string

	placeErr  error
	cancelErr error
	// exitErrFor 指定哪些持仓平仓失败
	exitErrFor map[string]error
}

func (f *fakeOrderGateway) PlaceOrder(_ context.Context, p venue.PlaceOrderParams) (*domain.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, p)
	return &domain.Order{ID: "ord-new", Side: p.Side, OrderType: p.Type, Status: domain.OrderStatusOpen}, nil
}

func (f *fakeOrderGateway) CancelOrder(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeOrderGateway) ExitPosition(_ context.Context, positionID string) error {
	if err, ok := f.exitErrFor[positionID]; ok {
		return err
	}
	f.exited = append(f.exited, positionID)
	return nil
}

func newTestMarket(t *testing.T) *MarketDataService {
	t.Helper()
	cfg := config.Default()
	return NewMarketDataService(cfg, nil)
}

// applyOrders 把一份订单列表作为成功 envelope 灌进 orders 视图
func applyOrders(t *testing.T, m *MarketDataService, ordersJSON string) {
	t.Helper()
	m.Orders.Apply(feed.Message{Envelope: &feed.Envelope{
		Success: true,
		Data:    json.RawMessage(ordersJSON),
	}})
}

func applyPositions(t *testing.T, m *MarketDataService, positionsJSON string) {
	t.Helper()
	m.Positions.Apply(feed.Message{Envelope: &feed.Envelope{
		Success: true,
		Data:    json.RawMessage(positionsJSON),
	}})
}

func TestPlaceLimitOrderWithoutPriceFailsFast(t *testing.T) {
	gw := &fakeOrderGateway{}
	svc := NewTradingService(gw, newTestMarket(t), config.Default().Trading)

	_, err := svc.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeLimit,
		decimal.NewFromInt(1), decimal.Zero)
	if !errors.Is(err, ErrPriceRequired) {
		t.Fatalf("期望 ErrPriceRequired，得到 %v", err)
	}
	if len(gw.placed) != 0 {
		t.Error("本地校验失败不应该发出网络请求")
	}
}

func TestPlaceOrderZeroQuantityRejected(t *testing.T) {
	gw := &fakeOrderGateway{}
	svc := NewTradingService(gw, newTestMarket(t), config.Default().Trading)

	_, err := svc.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeMarket,
		decimal.Zero, decimal.Zero)
	if !errors.Is(err, ErrQuantityRequired) {
		t.Fatalf("期望 ErrQuantityRequired，得到 %v", err)
	}
}

func TestPlaceMarketOrderIgnoresPrice(t *testing.T) {
	gw := &fakeOrderGateway{}
	cfg := config.Default().Trading
	svc := NewTradingService(gw, newTestMarket(t), cfg)

	_, err := svc.PlaceOrder(context.Background(), domain.SideSell, domain.OrderTypeMarket,
		decimal.NewFromInt(2), decimal.RequireFromString("99.5"))
	if err != nil {
		t.Fatalf("市价单下单失败: %v", err)
	}
	if len(gw.placed) != 1 {
		t.Fatal("期望一次下单请求")
	}
	if !gw.placed[0].Price.IsZero() {
		t.Errorf("市价单不应该携带价格，得到 %s", gw.placed[0].Price)
	}
	if gw.placed[0].Leverage.String() != "15" {
		t.Errorf("应使用默认杠杆 15，得到 %s", gw.placed[0].Leverage)
	}
	if gw.placed[0].Pair != cfg.Pair {
		t.Errorf("交易对 = %s, 期望 %s", gw.placed[0].Pair, cfg.Pair)
	}
}

func TestPlaceLimitOrderCarriesPrice(t *testing.T) {
	gw := &fakeOrderGateway{}
	svc := NewTradingService(gw, newTestMarket(t), config.Default().Trading)

	_, err := svc.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeLimit,
		decimal.NewFromInt(1), decimal.RequireFromString("101.5"))
	if err != nil {
		t.Fatalf("限价单下单失败: %v", err)
	}
	if gw.placed[0].Price.String() != "101.5" {
		t.Errorf("限价单价格 = %s, 期望 101.5", gw.placed[0].Price)
	}
}

// TestPlaceOrderDoesNotMutateViewUntilFeedConfirms venue 受理只是回执，
// 本地订单视图保持不变，新订单只能通过下一帧 orders envelope 出现
func TestPlaceOrderDoesNotMutateViewUntilFeedConfirms(t *testing.T) {
	gw := &fakeOrderGateway{}
	market := newTestMarket(t)
	svc := NewTradingService(gw, market, config.Default().Trading)

	applyOrders(t, market, `[{"id":"old-1","side":"buy","order_type":"limit_order","status":"open"}]`)

	order, err := svc.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeMarket,
		decimal.NewFromInt(1), decimal.Zero)
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if order.ID != "ord-new" {
		t.Fatalf("回执订单 ID = %s", order.ID)
	}

	// 受理回执不直接写进视图
	snap := market.Orders.Snapshot()
	if len(snap) != 1 || snap[0].ID != "old-1" {
		t.Fatalf("受理后视图应保持不变，得到 %+v", snap)
	}
	if _, ok := market.Orders.Get("ord-new"); ok {
		t.Fatal("新订单不应该在 feed 确认前出现在视图里")
	}

	// feed 推来下一帧快照后才可见
	applyOrders(t, market, `[
		{"id":"ord-new","side":"buy","order_type":"market_order","status":"open"},
		{"id":"old-1","side":"buy","order_type":"limit_order","status":"open"}
	]`)
	if _, ok := market.Orders.Get("ord-new"); !ok {
		t.Error("feed 确认后新订单应出现在视图里")
	}
}

func TestCancelOrderLifecycle(t *testing.T) {
	gw := &fakeOrderGateway{}
	market := newTestMarket(t)
	svc := NewTradingService(gw, market, config.Default().Trading)

	applyOrders(t, market, `[
		{"id":"open-1","side":"buy","order_type":"limit_order","status":"open"},
		{"id":"done-1","side":"sell","order_type":"market_order","status":"filled"}
	]`)

	// 终态订单拒绝
	if err := svc.CancelOrder(context.Background(), "done-1"); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("终态订单应拒绝取消，得到 %v", err)
	}

	// 未知订单拒绝
	if err := svc.CancelOrder(context.Background(), "ghost"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("未知订单应返回不存在，得到 %v", err)
	}

	// 正常取消：venue 被调用 + 本地标记意图
	if err := svc.CancelOrder(context.Background(), "open-1"); err != nil {
		t.Fatalf("取消失败: %v", err)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "open-1" {
		t.Errorf("venue 取消调用 = %v", gw.cancelled)
	}
	order, _ := market.Orders.Get("open-1")
	if !order.CancelRequested {
		t.Error("取消受理后应在本地标记意图")
	}

	// 重复取消拒绝
	if err := svc.CancelOrder(context.Background(), "open-1"); !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("已标记意图的订单应拒绝重复取消，得到 %v", err)
	}
}

func TestCancelOrderVenueFailureKeepsIntentClear(t *testing.T) {
	gw := &fakeOrderGateway{cancelErr: errors.New("venue 不可用")}
	market := newTestMarket(t)
	svc := NewTradingService(gw, market, config.Default().Trading)

	applyOrders(t, market, `[{"id":"open-1","side":"buy","order_type":"limit_order","status":"open"}]`)

	if err := svc.CancelOrder(context.Background(), "open-1"); err == nil {
		t.Fatal("venue 失败应报错")
	}
	order, _ := market.Orders.Get("open-1")
	if order.CancelRequested {
		t.Error("venue 未受理时不应标记取消意图")
	}
	if !order.Cancellable() {
		t.Error("venue 失败后订单应保持可取消，允许重试")
	}
}

func TestExitAllPositionsBestEffort(t *testing.T) {
	gw := &fakeOrderGateway{
		exitErrFor: map[string]error{"pos-2": errors.New("拒绝")},
	}
	market := newTestMarket(t)
	svc := NewTradingService(gw, market, config.Default().Trading)

	applyPositions(t, market, `[
		{"id":"pos-1","active_pos":1.5},
		{"id":"pos-2","active_pos":-2},
		{"id":"pos-3","active_pos":0.5},
		{"id":"flat","active_pos":0}
	]`)

	err := svc.ExitAllPositions(context.Background())
	if err == nil {
		t.Fatal("有持仓失败时应返回汇总错误")
	}

	// 失败的那个不阻塞其余持仓
	if len(gw.exited) != 2 {
		t.Fatalf("应尝试平掉其余 2 个持仓，实际 %v", gw.exited)
	}
	for _, id := range gw.exited {
		if id == "flat" {
			t.Error("空仓不应该发起平仓")
		}
	}
	if want := fmt.Sprintf("%d 个持仓平仓失败", 1); !strings.Contains(err.Error(), want) {
		t.Errorf("汇总错误应包含 %q，得到 %v", want, err)
	}
}
