package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biplawofficial/tradeterm/pkg/logger"
)

// VenueConfig 交易后端（collaborator）配置
type VenueConfig struct {
	BaseURL   string `yaml:"baseURL"`   // REST 基础地址
	WSBaseURL string `yaml:"wsBaseURL"` // WebSocket 基础地址
	APIKey    string `yaml:"-"`         // 只从环境变量读取，不落配置文件
	APISecret string `yaml:"-"`
}

// FeedConfig feed 通道配置
type FeedConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnectDelay"`    // 重连基础延迟
	MaxReconnectDelay time.Duration `yaml:"maxReconnectDelay"` // 重连延迟上限
	PingInterval      time.Duration `yaml:"pingInterval"`      // 心跳间隔
	MessageBufferSize int           `yaml:"messageBufferSize"` // 消息通道缓冲区大小
}

// UnmarshalYAML 支持 "2s" 这种时长写法；缺失的字段保留已有值
func (f *FeedConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ReconnectDelay    string `yaml:"reconnectDelay"`
		MaxReconnectDelay string `yaml:"maxReconnectDelay"`
		PingInterval      string `yaml:"pingInterval"`
		MessageBufferSize int    `yaml:"messageBufferSize"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := setDuration(&f.ReconnectDelay, raw.ReconnectDelay); err != nil {
		return err
	}
	if err := setDuration(&f.MaxReconnectDelay, raw.MaxReconnectDelay); err != nil {
		return err
	}
	if err := setDuration(&f.PingInterval, raw.PingInterval); err != nil {
		return err
	}
	if raw.MessageBufferSize > 0 {
		f.MessageBufferSize = raw.MessageBufferSize
	}
	return nil
}

// TradingConfig 交易配置
type TradingConfig struct {
	Pair            string        `yaml:"pair"`            // 交易对
	DefaultLeverage int           `yaml:"defaultLeverage"` // 默认杠杆
	PageSize        int           `yaml:"pageSize"`        // 订单历史每页条数
	RequestTimeout  time.Duration `yaml:"requestTimeout"`  // 请求/响应调用超时
	PollInterval    time.Duration `yaml:"pollInterval"`    // 定时交易轮询间隔
}

// UnmarshalYAML 支持 "10s" 这种时长写法；缺失的字段保留已有值
func (t *TradingConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Pair            string `yaml:"pair"`
		DefaultLeverage int    `yaml:"defaultLeverage"`
		PageSize        int    `yaml:"pageSize"`
		RequestTimeout  string `yaml:"requestTimeout"`
		PollInterval    string `yaml:"pollInterval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Pair != "" {
		t.Pair = raw.Pair
	}
	if raw.DefaultLeverage > 0 {
		t.DefaultLeverage = raw.DefaultLeverage
	}
	if raw.PageSize > 0 {
		t.PageSize = raw.PageSize
	}
	if err := setDuration(&t.RequestTimeout, raw.RequestTimeout); err != nil {
		return err
	}
	return setDuration(&t.PollInterval, raw.PollInterval)
}

// setDuration 解析 time.ParseDuration 格式的时长，空串不改变原值
func setDuration(dst *time.Duration, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("非法时长 %q: %w", s, err)
	}
	*dst = d
	return nil
}

// Config 控制台总配置
type Config struct {
	Venue    VenueConfig   `yaml:"venue"`
	Feed     FeedConfig    `yaml:"feed"`
	Trading  TradingConfig `yaml:"trading"`
	Logger   logger.Config `yaml:"logger"`
	StateDir string        `yaml:"stateDir"` // 视图状态快照目录（warm-start 缓存）
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Venue: VenueConfig{
			BaseURL:   "http://localhost:8000",
			WSBaseURL: "ws://localhost:8000",
		},
		Feed: FeedConfig{
			ReconnectDelay:    2 * time.Second,
			MaxReconnectDelay: 30 * time.Second,
			PingInterval:      10 * time.Second,
			MessageBufferSize: 256,
		},
		Trading: TradingConfig{
			Pair:            "B-RIVER_USDT",
			DefaultLeverage: 15,
			PageSize:        5,
			RequestTimeout:  10 * time.Second,
			PollInterval:    2 * time.Second,
		},
		Logger:   logger.DefaultConfig(),
		StateDir: "data/state",
	}
}

// Load 从 YAML 文件加载配置，环境变量覆盖文件值。
// path 为空或文件不存在时使用默认配置（环境变量仍然生效）。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖
func (c *Config) applyEnv() {
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("VENUE_API_SECRET"); v != "" {
		c.Venue.APISecret = v
	}
	if v := os.Getenv("VENUE_BASE_URL"); v != "" {
		c.Venue.BaseURL = v
	}
	if v := os.Getenv("VENUE_WS_BASE_URL"); v != "" {
		c.Venue.WSBaseURL = v
	}
	if v := os.Getenv("TRADING_PAIR"); v != "" {
		c.Trading.Pair = v
	}
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Trading.PageSize = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

// Validate 检查配置合法性
func (c *Config) Validate() error {
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.baseURL 不能为空")
	}
	if c.Venue.WSBaseURL == "" {
		return fmt.Errorf("venue.wsBaseURL 不能为空")
	}
	if c.Trading.PageSize <= 0 {
		return fmt.Errorf("trading.pageSize 必须大于 0")
	}
	if c.Trading.DefaultLeverage <= 0 {
		return fmt.Errorf("trading.defaultLeverage 必须大于 0")
	}
	if c.Trading.RequestTimeout <= 0 {
		return fmt.Errorf("trading.requestTimeout 必须大于 0")
	}
	return nil
}
