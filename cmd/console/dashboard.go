package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/biplawofficial/tradeterm/internal/book"
	"github.com/biplawofficial/tradeterm/internal/domain"
	"github.com/biplawofficial/tradeterm/internal/services"
)

const ladderDepth = book.DefaultDepth

// tickMsg 定时更新消息
type tickMsg time.Time

// promptMode 提示行当前等待哪种输入
type promptMode int

const (
	modeNone promptMode = iota
	modeOrder
	modeCancelOrder
	modeExitPosition
	modeSchedule
	modeCancelSchedule
)

// dashboardModel Bubbletea模型
type dashboardModel struct {
	// 数据源
	market    *services.MarketDataService
	trading   *services.TradingService
	scheduler *services.SchedulerService

	pair string

	// 状态数据（每个 tick 从服务层拉一次快照）
	bk        book.Book
	positions []domain.Position
	orders    []domain.Order
	trades    []domain.ScheduledTrade

	// 提示行状态
	mode  promptMode
	input string

	status string // 最近一次操作的结果提示

	// UI状态
	width  int
	height int
}

func newDashboardModel(pair string, market *services.MarketDataService, trading *services.TradingService, scheduler *services.SchedulerService) dashboardModel {
	return dashboardModel{
		pair:      pair,
		market:    market,
		trading:   trading,
		scheduler: scheduler,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refreshData()
		return m, tick()

	case tea.KeyMsg:
		if m.mode != modeNone {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refreshData()
			return m, nil
		case "n":
			if err := m.market.NextPage(); err != nil {
				m.status = fmt.Sprintf("翻页失败: %v", err)
			}
			return m, nil
		case "p":
			if err := m.market.PrevPage(); err != nil {
				m.status = fmt.Sprintf("翻页失败: %v", err)
			}
			return m, nil
		case "o":
			m.mode, m.input = modeOrder, ""
			return m, nil
		case "c":
			m.mode, m.input = modeCancelOrder, ""
			return m, nil
		case "e":
			m.mode, m.input = modeExitPosition, ""
			return m, nil
		case "s":
			m.mode, m.input = modeSchedule, ""
			return m, nil
		case "d":
			m.mode, m.input = modeCancelSchedule, ""
			return m, nil
		case "x":
			// 一键平仓（各持仓独立请求，失败不互相影响）
			if err := m.trading.ExitAllPositions(context.Background()); err != nil {
				m.status = fmt.Sprintf("平仓: %v", err)
			} else {
				m.status = "已发出全部平仓请求"
			}
			return m, nil
		}
	}

	return m, nil
}

// updatePrompt 提示行编辑：Enter 提交，Esc 放弃
func (m dashboardModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode, m.input = modeNone, ""
	case tea.KeyEnter:
		m.submitPrompt()
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

// submitPrompt 把提示行内容分发给对应的服务调用
func (m *dashboardModel) submitPrompt() {
	mode, text := m.mode, m.input
	m.mode, m.input = modeNone, ""
	ctx := context.Background()

	switch mode {
	case modeOrder:
		in, err := parseOrderInput(text)
		if err != nil {
			m.status = err.Error()
			return
		}
		order, err := m.trading.PlaceOrder(ctx, in.Side, in.Type, in.Quantity, in.Price)
		if err != nil {
			m.status = fmt.Sprintf("下单失败: %v", err)
			return
		}
		m.status = fmt.Sprintf("已受理订单 %s", truncID(order.ID))

	case modeCancelOrder:
		id, err := resolveID(text, orderIDs(m.orders))
		if err != nil {
			m.status = err.Error()
			return
		}
		if err := m.trading.CancelOrder(ctx, id); err != nil {
			m.status = fmt.Sprintf("撤单失败: %v", err)
			return
		}
		m.status = fmt.Sprintf("已发出撤单 %s", truncID(id))

	case modeExitPosition:
		id, err := resolveID(text, positionIDs(m.positions))
		if err != nil {
			m.status = err.Error()
			return
		}
		if err := m.trading.ExitPosition(ctx, id); err != nil {
			m.status = fmt.Sprintf("平仓失败: %v", err)
			return
		}
		m.status = fmt.Sprintf("已发出平仓 %s", truncID(id))

	case modeSchedule:
		in, at, err := parseScheduleInput(text)
		if err != nil {
			m.status = err.Error()
			return
		}
		trade, err := m.scheduler.Schedule(ctx, in.Side, in.Type, in.Quantity, in.Price, at)
		if err != nil {
			m.status = fmt.Sprintf("定时失败: %v", err)
			return
		}
		m.status = fmt.Sprintf("已创建定时交易 %s", truncID(trade.ID))

	case modeCancelSchedule:
		id, err := resolveID(text, tradeIDs(m.trades))
		if err != nil {
			m.status = err.Error()
			return
		}
		if err := m.scheduler.Cancel(ctx, id); err != nil {
			m.status = fmt.Sprintf("取消定时失败: %v", err)
			return
		}
		m.status = fmt.Sprintf("已取消定时交易 %s", truncID(id))
	}

	m.refreshData()
}

func (m dashboardModel) promptLabel() string {
	switch m.mode {
	case modeOrder:
		return "下单 buy|sell market|limit 数量 [价格]"
	case modeCancelOrder:
		return "撤单 行号或 ID"
	case modeExitPosition:
		return "平仓 行号或 ID"
	case modeSchedule:
		return "定时 buy|sell market|limit 数量 [价格] @ 时间"
	case modeCancelSchedule:
		return "取消定时 行号或 ID"
	}
	return ""
}

// refreshData 从服务层拉取最新快照
func (m *dashboardModel) refreshData() {
	m.bk = m.market.Book(ladderDepth)
	m.positions = m.market.Positions.Snapshot()
	m.orders = m.market.Orders.Snapshot()
	m.trades = m.scheduler.Trades()
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "初始化中..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderBook(), m.renderPositions()))
	sections = append(sections, m.renderOrders())
	sections = append(sections, m.renderScheduled())

	if m.mode != modeNone {
		prompt := titleStyle.Render(m.promptLabel()+" > ") + m.input + "▌" +
			dimStyle.Render("  (Enter 提交, Esc 放弃)")
		sections = append(sections, prompt)
	} else {
		footer := fmt.Sprintf("更新时间: %s | 'q' 退出 | 'r' 刷新 | 'n'/'p' 翻页 | 'o' 下单 | 'c' 撤单 | 'e' 平仓 | 's' 定时 | 'd' 取消定时 | 'x' 全部平仓",
			time.Now().Format("15:04:05"))
		if m.status != "" {
			footer += " | " + m.status
		}
		sections = append(sections, dimStyle.Render(footer))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// 样式定义
var (
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// connDot 连接状态指示灯，stale 时显示黄色
func connDot(connected, stale bool) string {
	switch {
	case connected && !stale:
		return successStyle.Render("●")
	case stale:
		return warningStyle.Render("●")
	default:
		return errorStyle.Render("●")
	}
}

func (m dashboardModel) renderHeader() string {
	title := titleStyle.Render("📈 " + m.pair + " 操作台")
	conn := fmt.Sprintf("持仓 %s  盘口 %s  订单 %s",
		connDot(m.market.Positions.Connected(), m.market.Positions.Stale()),
		connDot(m.market.Orderbook.Connected(), m.market.Orderbook.Stale()),
		connDot(m.market.Orders.Connected(), m.market.Orders.Stale()))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "   ", conn)
}

func (m dashboardModel) renderBook() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("盘口") + "\n")
	b.WriteString(fmt.Sprintf("%12s %10s | %-12s %-10s\n", "买价", "数量", "卖价", "数量"))

	for i := 0; i < ladderDepth; i++ {
		bid, ask := "", ""
		qb, qa := "", ""
		if i < len(m.bk.Bids) {
			bid = successStyle.Render(m.bk.Bids[i].Price.String())
			qb = m.bk.Bids[i].Quantity.StringFixed(4)
		}
		if i < len(m.bk.Asks) {
			ask = errorStyle.Render(m.bk.Asks[i].Price.String())
			qa = m.bk.Asks[i].Quantity.StringFixed(4)
		}
		if bid == "" && ask == "" {
			break
		}
		b.WriteString(fmt.Sprintf("%12s %10s | %-12s %-10s\n", bid, qb, ask, qa))
	}

	if spread, ok := m.bk.Spread(); ok {
		b.WriteString(dimStyle.Render(fmt.Sprintf("价差: %s", spread)))
	}
	return borderStyle.Render(b.String())
}

func (m dashboardModel) renderPositions() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("持仓") + "\n")

	if len(m.positions) == 0 {
		b.WriteString(dimStyle.Render("（无持仓）"))
		return borderStyle.Render(b.String())
	}

	b.WriteString(fmt.Sprintf("%-3s %-6s %10s %10s %10s %12s\n", "#", "方向", "数量", "均价", "标记价", "盈亏"))
	for i, pos := range m.positions {
		pnl := pos.PnL()
		pnlStr := pnl.StringFixed(4)
		if pnl.Sign() > 0 {
			pnlStr = successStyle.Render("+" + pnlStr)
		} else if pnl.Sign() < 0 {
			pnlStr = errorStyle.Render(pnlStr)
		}
		b.WriteString(fmt.Sprintf("%-3d %-6s %10s %10s %10s %12s\n",
			i+1, pos.SideLabel(), pos.Size().StringFixed(4),
			pos.AvgPrice.String(), pos.MarkPrice.String(), pnlStr))
	}
	return borderStyle.Render(b.String())
}

func (m dashboardModel) renderOrders() string {
	var b strings.Builder
	pager := m.market.Pager
	title := fmt.Sprintf("订单历史（第 %d 页）", pager.Page())
	if pager.InFlight() {
		title += " 加载中..."
	}
	if pager.Stale() {
		title += warningStyle.Render(" [可能过期]")
	}
	b.WriteString(titleStyle.Render(title) + "\n")

	if len(m.orders) == 0 {
		b.WriteString(dimStyle.Render("（本页无订单）"))
	} else {
		b.WriteString(fmt.Sprintf("%-3s %-14s %-5s %-7s %10s %10s %-10s\n",
			"#", "ID", "方向", "类型", "数量", "价格", "状态"))
		for i, o := range m.orders {
			status := string(o.Status)
			if o.Status == domain.OrderStatusUnknown && o.RawStatus != "" {
				status = o.RawStatus
			}
			if o.CancelRequested {
				status += " (取消中)"
			}
			price := o.Price.String()
			if o.OrderType == domain.OrderTypeMarket {
				price = "-"
			}
			b.WriteString(fmt.Sprintf("%-3d %-14s %-5s %-7s %10s %10s %-10s\n",
				i+1, truncID(o.ID), o.Side, o.OrderType,
				o.TotalQuantity.StringFixed(4), price, status))
		}
	}

	nav := ""
	if pager.Page() > 1 {
		nav += "'p' 上一页  "
	}
	if pager.HasNext() {
		nav += "'n' 下一页"
	}
	if nav != "" {
		b.WriteString(dimStyle.Render(nav))
	}
	return borderStyle.Render(b.String())
}

func (m dashboardModel) renderScheduled() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("定时交易") + "\n")

	if errMsg := m.scheduler.LastError(); errMsg != "" {
		b.WriteString(errorStyle.Render("刷新失败: "+errMsg) + "\n")
	}

	if len(m.trades) == 0 {
		b.WriteString(dimStyle.Render("（无定时交易）"))
		return borderStyle.Render(b.String())
	}

	b.WriteString(fmt.Sprintf("%-3s %-10s %-5s %-7s %10s %-17s %-10s\n",
		"#", "ID", "方向", "类型", "数量", "执行时间", "状态"))
	for i, tr := range m.trades {
		status := string(tr.Status)
		if tr.Status == domain.ScheduleStatusUnknown && tr.RawStatus != "" {
			// 未知状态原样展示，不隐藏
			status = tr.RawStatus
		}
		b.WriteString(fmt.Sprintf("%-3d %-10s %-5s %-7s %10s %-17s %-10s\n",
			i+1, truncID(tr.ID), tr.Side, tr.OrderType,
			tr.Quantity.StringFixed(4),
			tr.ExecuteAt.Format("01-02 15:04:05"), status))
	}
	return borderStyle.Render(b.String())
}

func truncID(id string) string {
	if len(id) > 12 {
		return id[:12] + ".."
	}
	return id
}
