package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/venue"
	"github.com/biplawofficial/tradeterm/pkg/config"
)

// fakeScheduleGateway 内存版定时交易 venue
type fakeScheduleGateway struct {
	trades []domain.ScheduledTrade

	scheduled []venue.ScheduleParams
	cancelled []string
	listCalls int

	listErr   error
	cancelErr error
}

func (f *fakeScheduleGateway) ScheduleTrade(_ context.Context, p venue.ScheduleParams) (*domain.ScheduledTrade, error) {
	f.scheduled = append(f.scheduled, p)
	trade := domain.ScheduledTrade{
		ID:        "sch-new",
		Side:      p.Side,
		OrderType: p.Type,
		Quantity:  p.Quantity,
		Price:     p.Price,
		ExecuteAt: p.ExecuteAt,
		Status:    domain.ScheduleStatusPending,
	}
	f.trades = append(f.trades, trade)
	return &trade, nil
}

func (f *fakeScheduleGateway) ScheduledTrades(_ context.Context) ([]domain.ScheduledTrade, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ScheduledTrade, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

func (f *fakeScheduleGateway) CancelScheduledTrade(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	for i := range f.trades {
		if f.trades[i].ID == id {
			f.trades[i].Status = domain.ScheduleStatusCancelled
		}
	}
	return nil
}

func pendingTrade(id string, at time.Time) domain.ScheduledTrade {
	return domain.ScheduledTrade{
		ID:        id,
		Side:      domain.SideBuy,
		OrderType: domain.OrderTypeMarket,
		Quantity:  decimal.NewFromInt(1),
		ExecuteAt: at,
		Status:    domain.ScheduleStatusPending,
	}
}

func TestSchedulePastExecuteAtRejected(t *testing.T) {
	gw := &fakeScheduleGateway{}
	svc := NewSchedulerService(gw, config.Default().Trading)

	_, err := svc.Schedule(context.Background(), domain.SideBuy, domain.OrderTypeMarket,
		decimal.NewFromInt(1), decimal.Zero, time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrExecuteAtPast) {
		t.Fatalf("期望 ErrExecuteAtPast，得到 %v", err)
	}
	if len(gw.scheduled) != 0 {
		t.Error("本地校验失败不应该发请求")
	}
}

func TestScheduleLimitWithoutPriceRejected(t *testing.T) {
	gw := &fakeScheduleGateway{}
	svc := NewSchedulerService(gw, config.Default().Trading)

	_, err := svc.Schedule(context.Background(), domain.SideBuy, domain.OrderTypeLimit,
		decimal.NewFromInt(1), decimal.Zero, time.Now().Add(time.Hour))
	if !errors.Is(err, ErrPriceRequired) {
		t.Fatalf("期望 ErrPriceRequired，得到 %v", err)
	}
}

func TestScheduleRefreshesAfterMutate(t *testing.T) {
	gw := &fakeScheduleGateway{}
	svc := NewSchedulerService(gw, config.Default().Trading)

	trade, err := svc.Schedule(context.Background(), domain.SideBuy, domain.OrderTypeMarket,
		decimal.NewFromInt(1), decimal.Zero, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if trade.Status != domain.ScheduleStatusPending {
		t.Errorf("新定时交易应为 pending，得到 %s", trade.Status)
	}
	// 变更后立刻刷新，不等轮询
	if gw.listCalls != 1 {
		t.Errorf("变更后应刷新一次列表，实际 %d 次", gw.listCalls)
	}
	if got := svc.Trades(); len(got) != 1 || got[0].ID != "sch-new" {
		t.Errorf("本地列表 = %+v", got)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	gw := &fakeScheduleGateway{trades: []domain.ScheduledTrade{
		pendingTrade("p1", time.Now().Add(time.Hour)),
		{ID: "done", Status: domain.ScheduleStatusExecuted},
		{ID: "weird", Status: domain.ScheduleStatusUnknown, RawStatus: "executing"},
	}}
	svc := NewSchedulerService(gw, config.Default().Trading)
	svc.Refresh(context.Background())

	if err := svc.Cancel(context.Background(), "done"); !errors.Is(err, ErrTradeNotCancellable) {
		t.Fatalf("终态应拒绝取消，得到 %v", err)
	}
	// 未知状态按惰性处理：不报错也不可取消
	if err := svc.Cancel(context.Background(), "weird"); !errors.Is(err, ErrTradeNotCancellable) {
		t.Fatalf("未知状态应拒绝取消，得到 %v", err)
	}
	if err := svc.Cancel(context.Background(), "ghost"); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("不存在的 id 应报不存在，得到 %v", err)
	}

	if err := svc.Cancel(context.Background(), "p1"); err != nil {
		t.Fatalf("pending 取消失败: %v", err)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "p1" {
		t.Errorf("venue 取消调用 = %v", gw.cancelled)
	}
	// 取消后的刷新拿到了终态
	for _, tr := range svc.Trades() {
		if tr.ID == "p1" && tr.Status != domain.ScheduleStatusCancelled {
			t.Errorf("取消后状态 = %s", tr.Status)
		}
	}
}

func TestRefreshFailureKeepsList(t *testing.T) {
	gw := &fakeScheduleGateway{trades: []domain.ScheduledTrade{
		pendingTrade("p1", time.Now().Add(time.Hour)),
	}}
	svc := NewSchedulerService(gw, config.Default().Trading)
	svc.Refresh(context.Background())

	if len(svc.Trades()) != 1 {
		t.Fatal("首次刷新应拿到列表")
	}

	gw.listErr = errors.New("venue 超时")
	svc.Refresh(context.Background())

	// 失败不清空旧列表
	if len(svc.Trades()) != 1 {
		t.Error("刷新失败应保留旧列表")
	}
	if svc.LastError() == "" {
		t.Error("刷新失败应记录错误")
	}

	gw.listErr = nil
	svc.Refresh(context.Background())
	if svc.LastError() != "" {
		t.Error("刷新成功后应清空错误")
	}
}

func TestPollingLoop(t *testing.T) {
	gw := &fakeScheduleGateway{}
	cfg := config.Default().Trading
	cfg.PollInterval = 10 * time.Millisecond
	svc := NewSchedulerService(gw, cfg)

	svc.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	svc.Stop()

	// 启动时一次 + 至少三个轮询周期
	if gw.listCalls < 4 {
		t.Errorf("轮询次数 = %d, 期望 >= 4", gw.listCalls)
	}

	after := gw.listCalls
	time.Sleep(30 * time.Millisecond)
	if gw.listCalls != after {
		t.Error("Stop 后不应继续轮询")
	}
}

func TestPendingFilter(t *testing.T) {
	gw := &fakeScheduleGateway{trades: []domain.ScheduledTrade{
		pendingTrade("p1", time.Now().Add(time.Hour)),
		{ID: "done", Status: domain.ScheduleStatusExecuted},
		{ID: "bad", Status: domain.ScheduleStatusFailed},
	}}
	svc := NewSchedulerService(gw, config.Default().Trading)
	svc.Refresh(context.Background())

	pending := svc.Pending()
	if len(pending) != 1 || pending[0].ID != "p1" {
		t.Errorf("Pending() = %+v", pending)
	}
}
