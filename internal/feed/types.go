// Package feed 实现三条推送通道（positions / orderbook / orders）的
// 客户端状态同步核心：通道生命周期、envelope 对账、分页关联。
package feed

import (
	"encoding/json"
	"time"
)

const (
	defaultReconnectDelay    = 2 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultPingInterval      = 10 * time.Second

	defaultMessageBufferSize = 256

	defaultHandshakeTimeout = 15 * time.Second
)

// Config 通道配置
type Config struct {
	// 重连设置（由 Manager 使用，Channel 本身不重连）
	ReconnectDelay    time.Duration // 重连基础延迟
	MaxReconnectDelay time.Duration // 重连延迟上限

	// 心跳设置
	PingInterval time.Duration // Ping 间隔（0 表示不发心跳）

	// 缓冲区设置
	MessageBufferSize int // 消息通道缓冲区大小

	// 连接设置
	HandshakeTimeout time.Duration // 握手超时时间
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ReconnectDelay:    defaultReconnectDelay,
		MaxReconnectDelay: defaultMaxReconnectDelay,
		PingInterval:      defaultPingInterval,
		MessageBufferSize: defaultMessageBufferSize,
		HandshakeTimeout:  defaultHandshakeTimeout,
	}
}

// Envelope 是每条推送/响应消息的统一包装 {success, data, error?}。
// orders 通道的响应额外带 page/seq 回显（seq 是对无请求 ID 协议的扩展，
// server 不支持时为 0）。
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Page    int             `json:"page,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
}

// HasData 检查 envelope 是否携带可用数据
func (e *Envelope) HasData() bool {
	return e.Success && len(e.Data) > 0 && string(e.Data) != "null"
}

// Message 通道入站消息。解析成功时 Envelope 非 nil；
// 解析失败的负载不丢弃，原样放在 Raw 里交给消费方决定忽略还是记日志。
type Message struct {
	Envelope *Envelope
	Raw      []byte
}

// IsMalformed 检查消息是否解析失败
func (m Message) IsMalformed() bool {
	return m.Envelope == nil
}

// PageRequest 分页请求 {page, size}，seq 为客户端附加的单调序号
type PageRequest struct {
	Page int   `json:"page"`
	Size int   `json:"size"`
	Seq  int64 `json:"seq,omitempty"`
}
