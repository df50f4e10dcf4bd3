package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/biplawofficial/tradeterm/internal/services"
	"github.com/biplawofficial/tradeterm/internal/venue"
	"github.com/biplawofficial/tradeterm/pkg/config"
	"github.com/biplawofficial/tradeterm/pkg/logger"
	"github.com/biplawofficial/tradeterm/pkg/persistence"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml）")
	envFile := flag.String("env", ".env", "环境变量文件路径")
	headless := flag.Bool("headless", false, "不启动 TUI，仅维持状态同步")
	flag.Parse()

	// .env 不存在不算错误（生产环境直接用环境变量）
	if err := godotenv.Load(*envFile); err != nil && *envFile != ".env" {
		fmt.Fprintf(os.Stderr, "加载环境变量文件失败: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logrus.Infof("启动操作台: pair=%s venue=%s", cfg.Trading.Pair, cfg.Venue.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := persistence.NewJSONFileService(cfg.StateDir)

	client := venue.NewClient(cfg.Venue.BaseURL, cfg.Venue.APIKey, cfg.Venue.APISecret).
		SetTimeout(cfg.Trading.RequestTimeout)

	market := services.NewMarketDataService(cfg, store)
	trading := services.NewTradingService(client, market, cfg.Trading)
	scheduler := services.NewSchedulerService(client, cfg.Trading)

	market.Start(ctx)
	scheduler.Start(ctx)
	defer func() {
		scheduler.Stop()
		market.Stop()
		logrus.Info("操作台已退出")
	}()

	if *headless {
		<-ctx.Done()
		return
	}

	// TUI 接管终端后日志只能走文件
	logger.SuppressConsole()

	model := newDashboardModel(cfg.Trading.Pair, market, trading, scheduler)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		logrus.Errorf("TUI 异常退出: %v", err)
		os.Exit(1)
	}
}
