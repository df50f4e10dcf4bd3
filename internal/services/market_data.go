// Package services 组合 feed / venue / book，向控制台提供业务操作：
// 行情状态同步、订单生命周期、定时交易管理。
package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/book"
	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/feed"
	"github.com/biplawofficial/tradeterm/pkg/config"
	"github.com/biplawofficial/tradeterm/pkg/logger"
	"github.com/biplawofficial/tradeterm/pkg/persistence"
)

const (
	endpointPositions = "/ws/positions"
	endpointOrderbook = "/ws/orderbook"
	endpointOrders    = "/ws/orders"

	channelPositions = "positions"
	channelOrderbook = "orderbook"
	channelOrders    = "orders"
)

// MarketDataService 管理三条推送通道和对应的本地视图。
// 视图只在成功 envelope 上整体覆盖；断线重连由 feed.Manager 驱动；
// 本地缓存用于冷启动时先展示带 stale 标记的旧状态。
type MarketDataService struct {
	cfg *config.Config

	manager *feed.Manager

	Positions *feed.PositionsView
	Orderbook *feed.OrderbookView
	Orders    *feed.OrdersView

	Pager *feed.Paginator

	stores storeSet

	log *logrus.Entry
}

type storeSet struct {
	positions persistence.Store
	orderbook persistence.Store
	orders    persistence.Store
}

func NewMarketDataService(cfg *config.Config, store persistence.Service) *MarketDataService {
	s := &MarketDataService{
		cfg:       cfg,
		Positions: feed.NewPositionsView(),
		Orderbook: feed.NewOrderbookView(),
		Orders:    feed.NewOrdersView(),
		log:       logger.Component("market_data"),
	}
	s.Pager = feed.NewPaginator(nil, cfg.Trading.PageSize, cfg.Trading.RequestTimeout)
	if store != nil {
		s.stores = storeSet{
			positions: store.NewStore("state", cfg.Trading.Pair, "positions"),
			orderbook: store.NewStore("state", cfg.Trading.Pair, "orderbook"),
			orders:    store.NewStore("state", cfg.Trading.Pair, "orders"),
		}
	}
	return s
}

// Start 恢复本地缓存并启动三条通道。通道在后台跑，停止用 Stop。
func (s *MarketDataService) Start(ctx context.Context) {
	s.restore()

	s.manager = feed.NewManager(ctx, s.feedConfig())

	s.manager.Run(channelPositions, s.wsURL(endpointPositions),
		nil,
		func(msg feed.Message) {
			s.Positions.Apply(msg)
			s.persistPositions()
		},
		s.Positions.SetConnected,
	)

	s.manager.Run(channelOrderbook, s.wsURL(endpointOrderbook),
		nil,
		func(msg feed.Message) {
			s.Orderbook.Apply(msg)
			s.persistOrderbook()
		},
		s.Orderbook.SetConnected,
	)

	s.manager.Run(channelOrders, s.wsURL(endpointOrders),
		func(ch *feed.Channel) {
			// 重连后换 sender 并重新拉当前页
			s.Pager.SetSender(ch)
			if err := s.Pager.RequestPage(s.Pager.Page()); err != nil {
				s.log.Warnf("重连后拉取订单页失败: %v", err)
			}
		},
		func(msg feed.Message) {
			if s.Pager.Observe(msg) {
				s.Orders.Apply(msg)
				s.persistOrders()
			}
		},
		s.Orders.SetConnected,
	)
}

// Stop 关闭所有通道并停止视图更新
func (s *MarketDataService) Stop() {
	if s.manager != nil {
		s.manager.Close()
	}
	s.Positions.Close()
	s.Orderbook.Close()
	s.Orders.Close()
}

// Book 聚合后的 Top-N 盘口
func (s *MarketDataService) Book(depth int) book.Book {
	return book.Aggregate(s.Orderbook.Snapshot(), depth)
}

// NextPage 请求下一页订单。没有下一页时是 no-op。
func (s *MarketDataService) NextPage() error {
	if !s.Pager.HasNext() {
		return nil
	}
	return s.Pager.RequestPage(s.Pager.Page() + 1)
}

// PrevPage 请求上一页订单。已在第一页时是 no-op。
func (s *MarketDataService) PrevPage() error {
	if s.Pager.Page() <= 1 {
		return nil
	}
	return s.Pager.RequestPage(s.Pager.Page() - 1)
}

// RefreshOrders 重新拉取当前页
func (s *MarketDataService) RefreshOrders() error {
	return s.Pager.RequestPage(s.Pager.Page())
}

func (s *MarketDataService) wsURL(endpoint string) string {
	return strings.TrimSuffix(s.cfg.Venue.WSBaseURL, "/") + endpoint
}

func (s *MarketDataService) feedConfig() *feed.Config {
	fc := feed.DefaultConfig()
	if s.cfg.Feed.ReconnectDelay > 0 {
		fc.ReconnectDelay = s.cfg.Feed.ReconnectDelay
	}
	if s.cfg.Feed.MaxReconnectDelay > 0 {
		fc.MaxReconnectDelay = s.cfg.Feed.MaxReconnectDelay
	}
	if s.cfg.Feed.PingInterval > 0 {
		fc.PingInterval = s.cfg.Feed.PingInterval
	}
	if s.cfg.Feed.MessageBufferSize > 0 {
		fc.MessageBufferSize = s.cfg.Feed.MessageBufferSize
	}
	return fc
}

// restore 冷启动：把上次退出时的状态灌进视图（带 stale 标记），
// 第一条成功 envelope 到达后整体覆盖并清除 stale。
func (s *MarketDataService) restore() {
	if s.stores.positions != nil {
		var positions []domain.Position
		if err := s.stores.positions.Load(&positions); err == nil && len(positions) > 0 {
			s.Positions.Restore(positions)
			s.log.Infof("恢复了 %d 条持仓缓存", len(positions))
		}
	}
	if s.stores.orderbook != nil {
		var snap domain.OrderbookSnapshot
		if err := s.stores.orderbook.Load(&snap); err == nil && !snap.IsEmpty() {
			s.Orderbook.Restore(snap)
		}
	}
	if s.stores.orders != nil {
		var orders []domain.Order
		if err := s.stores.orders.Load(&orders); err == nil && len(orders) > 0 {
			s.Orders.Restore(orders)
			s.log.Infof("恢复了 %d 条订单缓存", len(orders))
		}
	}
}

func (s *MarketDataService) persistPositions() {
	if s.stores.positions == nil {
		return
	}
	if err := s.stores.positions.Save(s.Positions.Snapshot()); err != nil {
		s.log.Debugf("持仓缓存写入失败: %v", err)
	}
}

func (s *MarketDataService) persistOrderbook() {
	if s.stores.orderbook == nil {
		return
	}
	if err := s.stores.orderbook.Save(s.Orderbook.Snapshot()); err != nil {
		s.log.Debugf("盘口缓存写入失败: %v", err)
	}
}

func (s *MarketDataService) persistOrders() {
	if s.stores.orders == nil {
		return
	}
	if err := s.stores.orders.Save(s.Orders.Snapshot()); err != nil {
		s.log.Debugf("订单缓存写入失败: %v", err)
	}
}
