package services

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/venue"
	"github.com/biplawofficial/tradeterm/pkg/config"
	"github.com/biplawofficial/tradeterm/pkg/logger"
	"github.com/biplawofficial/tradeterm/pkg/sigchan"
)

var (
	// ErrExecuteAtPast 执行时间必须在未来
	ErrExecuteAtPast = errors.New("执行时间必须在未来")
	// ErrTradeNotCancellable 定时交易只有 pending 可取消
	ErrTradeNotCancellable = errors.New("定时交易不可取消")
	// ErrTradeNotFound 本地列表里没有这个定时交易
	ErrTradeNotFound = errors.New("定时交易不存在")
)

// ScheduleGateway 定时交易需要的 venue 操作
type ScheduleGateway interface {
	ScheduleTrade(ctx context.Context, p venue.ScheduleParams) (*domain.ScheduledTrade, error)
	ScheduledTrades(ctx context.Context) ([]domain.ScheduledTrade, error)
	CancelScheduledTrade(ctx context.Context, id string) error
}

// SchedulerService 定时交易管理。
//
// 状态机由 server 驱动（pending -> executed/failed），客户端只发起
// 创建和取消。本地列表通过轮询 + 每次变更后立刻刷新保持同步；
// 刷新失败时保留旧列表（overwrite-only-on-success），不清空。
type SchedulerService struct {
	gateway ScheduleGateway
	cfg     config.TradingConfig

	mu        sync.RWMutex
	trades    []domain.ScheduledTrade
	lastError string
	updatedAt time.Time

	// C 在列表变化后收到信号（驱动 UI 重绘）
	C *sigchan.Chan

	cancel context.CancelFunc
	done   chan struct{}

	log *logrus.Entry
}

func NewSchedulerService(gateway ScheduleGateway, cfg config.TradingConfig) *SchedulerService {
	return &SchedulerService{
		gateway: gateway,
		cfg:     cfg,
		C:       sigchan.New(1),
		log:     logger.Component("scheduler"),
	}
}

// Start 立刻拉一次列表，然后按 PollInterval 轮询直到 Stop
func (s *SchedulerService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.Refresh(ctx)

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
}

// Stop 停止轮询
func (s *SchedulerService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Schedule 创建定时交易。执行时间必须在未来；限价单必须带价格；
// 校验失败本地拒绝不发请求。成功后立刻刷新列表。
func (s *SchedulerService) Schedule(ctx context.Context, side domain.Side, typ domain.OrderType, quantity, price decimal.Decimal, executeAt time.Time) (*domain.ScheduledTrade, error) {
	if quantity.Sign() <= 0 {
		return nil, ErrQuantityRequired
	}
	if typ == domain.OrderTypeLimit && price.Sign() <= 0 {
		return nil, ErrPriceRequired
	}
	if !executeAt.After(time.Now()) {
		return nil, ErrExecuteAtPast
	}

	trade, err := s.gateway.ScheduleTrade(ctx, venue.ScheduleParams{
		Pair:      s.cfg.Pair,
		Side:      side,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		Leverage:  decimal.NewFromInt(int64(s.cfg.DefaultLeverage)),
		ExecuteAt: executeAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "创建定时交易失败")
	}

	s.Refresh(ctx)
	return trade, nil
}

// Cancel 取消定时交易。只有 pending 可取消；终态和未知状态
// （比如执行瞬间的过渡态）都拒绝。成功后立刻刷新列表。
func (s *SchedulerService) Cancel(ctx context.Context, id string) error {
	trade, ok := s.find(id)
	if !ok {
		return ErrTradeNotFound
	}
	if !trade.Cancellable() {
		return ErrTradeNotCancellable
	}

	if err := s.gateway.CancelScheduledTrade(ctx, id); err != nil {
		return errors.Wrap(err, "取消定时交易失败")
	}

	s.Refresh(ctx)
	return nil
}

// Refresh 从 venue 拉取完整列表并整体覆盖。失败时保留旧列表。
func (s *SchedulerService) Refresh(ctx context.Context) {
	trades, err := s.gateway.ScheduledTrades(ctx)

	s.mu.Lock()
	if err != nil {
		s.lastError = err.Error()
		s.mu.Unlock()
		s.log.Warnf("拉取定时交易列表失败: %v", err)
		return
	}
	s.trades = trades
	s.lastError = ""
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.C.Emit()
}

// Trades 当前列表的副本
func (s *SchedulerService) Trades() []domain.ScheduledTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduledTrade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Pending 仅 pending 状态的定时交易
func (s *SchedulerService) Pending() []domain.ScheduledTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledTrade
	for _, t := range s.trades {
		if t.Status == domain.ScheduleStatusPending {
			out = append(out, t)
		}
	}
	return out
}

// LastError 上次刷新失败的原因（成功后清空）
func (s *SchedulerService) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// UpdatedAt 上次成功刷新的时间
func (s *SchedulerService) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *SchedulerService) find(id string) (domain.ScheduledTrade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trades {
		if t.ID == id {
			return t, true
		}
	}
	return domain.ScheduledTrade{}, false
}
