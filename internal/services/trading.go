package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/venue"
	"github.com/biplawofficial/tradeterm/pkg/config"
	"github.com/biplawofficial/tradeterm/pkg/logger"
)

var (
	// ErrPriceRequired 限价单缺价格。本地直接拒绝，不发请求。
	ErrPriceRequired = errors.New("限价单必须指定价格")
	// ErrQuantityRequired 数量必须为正
	ErrQuantityRequired = errors.New("数量必须大于零")
	// ErrOrderNotCancellable 订单已终态或已发过取消请求
	ErrOrderNotCancellable = errors.New("订单不可取消")
	// ErrOrderNotFound 本地订单视图里没有这个订单
	ErrOrderNotFound = errors.New("订单不存在")
)

// OrderGateway 下单侧需要的 venue 操作
type OrderGateway interface {
	PlaceOrder(ctx context.Context, p venue.PlaceOrderParams) (*domain.Order, error)
	CancelOrder(ctx context.Context, id string) error
	ExitPosition(ctx context.Context, positionID string) error
}

// TradingService 订单生命周期：下单、撤单、平仓。
// 所有订单状态最终以 orders feed 为准；这里只负责发起请求、
// 本地校验和取消意图标记。
type TradingService struct {
	gateway OrderGateway
	market  *MarketDataService
	cfg     config.TradingConfig

	log *logrus.Entry
}

func NewTradingService(gateway OrderGateway, market *MarketDataService, cfg config.TradingConfig) *TradingService {
	return &TradingService{
		gateway: gateway,
		market:  market,
		cfg:     cfg,
		log:     logger.Component("trading"),
	}
}

// PlaceOrder 下单。限价单缺价格在本地 fail-fast，不产生网络请求。
// 市价单忽略传入的价格。成功后刷新订单列表当前页。
func (s *TradingService) PlaceOrder(ctx context.Context, side domain.Side, typ domain.OrderType, quantity, price decimal.Decimal) (*domain.Order, error) {
	if quantity.Sign() <= 0 {
		return nil, ErrQuantityRequired
	}
	if typ == domain.OrderTypeLimit && price.Sign() <= 0 {
		return nil, ErrPriceRequired
	}
	if typ == domain.OrderTypeMarket {
		price = decimal.Zero
	}

	order, err := s.gateway.PlaceOrder(ctx, venue.PlaceOrderParams{
		Pair:     s.cfg.Pair,
		Side:     side,
		Type:     typ,
		Quantity: quantity,
		Price:    price,
		Leverage: decimal.NewFromInt(int64(s.cfg.DefaultLeverage)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "下单失败")
	}

	s.refreshOrders()
	return order, nil
}

// CancelOrder 撤单。终态订单和已发过取消请求的订单直接拒绝；
// venue 受理后在本地标记取消意图（隐藏重复的取消入口），
// 真正的状态迁移等 feed 推送。
func (s *TradingService) CancelOrder(ctx context.Context, orderID string) error {
	if s.market != nil {
		order, ok := s.market.Orders.Get(orderID)
		if !ok {
			return ErrOrderNotFound
		}
		if !order.Cancellable() {
			return ErrOrderNotCancellable
		}
	}

	if err := s.gateway.CancelOrder(ctx, orderID); err != nil {
		return errors.Wrap(err, "撤单失败")
	}

	if s.market != nil {
		s.market.Orders.MarkCancelRequested(orderID)
	}
	s.refreshOrders()
	return nil
}

// ExitPosition 市价平掉一个持仓
func (s *TradingService) ExitPosition(ctx context.Context, positionID string) error {
	if err := s.gateway.ExitPosition(ctx, positionID); err != nil {
		return errors.Wrap(err, "平仓失败")
	}
	return nil
}

// ExitAllPositions 平掉所有持仓。各持仓独立请求、独立失败：
// 一个失败不影响其余的继续，最后汇总报告。
func (s *TradingService) ExitAllPositions(ctx context.Context) error {
	if s.market == nil {
		return errors.New("行情服务不可用")
	}

	var failed int
	var firstErr error
	for _, pos := range s.market.Positions.Snapshot() {
		if !pos.IsOpen() {
			continue
		}
		if err := s.gateway.ExitPosition(ctx, pos.ID); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.log.Errorf("平仓 %s 失败: %v", pos.ID, err)
		}
	}

	if failed > 0 {
		return errors.Wrapf(firstErr, "%d 个持仓平仓失败", failed)
	}
	return nil
}

func (s *TradingService) refreshOrders() {
	if s.market == nil {
		return
	}
	if err := s.market.RefreshOrders(); err != nil {
		s.log.Debugf("刷新订单列表失败: %v", err)
	}
}
