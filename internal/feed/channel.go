package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Channel 是一条 feed 推送通道的显式资源封装：Open 获取，Close 释放，
// 所有退出路径（本地 Close、远端断开、读错误）都保证 Messages 被关闭、
// 连接被回收。Channel 本身不重连，重试策略由调用方（Manager）决定。
type Channel struct {
	name string
	url  string
	cfg  *Config

	conn   *websocket.Conn
	connMu sync.Mutex

	msgCh chan Message

	connected   bool
	connectedMu sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	log *logrus.Entry
}

// Open 建立到 endpoint 的 WebSocket 连接并开始读取。
// 返回的 Channel 已经在投递消息；连接失败时不返回半开资源。
func Open(ctx context.Context, name, endpoint string, cfg *Config) (*Channel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	headers := make(http.Header)
	headers.Set("User-Agent", "tradeterm-console/1.0")

	conn, _, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", endpoint, err)
	}

	c := &Channel{
		name:      name,
		url:       endpoint,
		cfg:       cfg,
		conn:      conn,
		msgCh:     make(chan Message, cfg.MessageBufferSize),
		connected: true,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		log:       logrus.WithField("component", "feed_channel").WithField("feed", name),
	}

	go c.readLoop()
	if cfg.PingInterval > 0 {
		go c.pingLoop()
	}

	c.log.Infof("通道已连接: %s", endpoint)
	return c, nil
}

// Messages 返回入站消息通道。通道在连接结束后关闭，
// 调用方可以用 range 消费直到退出。
func (c *Channel) Messages() <-chan Message {
	return c.msgCh
}

// Send 向通道发送一条 JSON 消息
func (c *Channel) Send(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("通道 %s 未连接", c.name)
	}
	return c.conn.WriteJSON(v)
}

// Connected 返回连接状态
func (c *Channel) Connected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.connected
}

// Done 在读循环退出（本地关闭或远端断开）后关闭
func (c *Channel) Done() <-chan struct{} {
	return c.doneCh
}

// Close 关闭通道并释放连接。幂等。
func (c *Channel) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
	})

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		c.log.Warnf("关闭超时")
	}
}

func (c *Channel) setConnected(v bool) {
	c.connectedMu.Lock()
	c.connected = v
	c.connectedMu.Unlock()
}

// readLoop 持续读取入站消息直到连接结束
func (c *Channel) readLoop() {
	defer func() {
		c.setConnected(false)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		close(c.msgCh)
		close(c.doneCh)
	}()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Infof("通道正常关闭")
			} else {
				select {
				case <-c.stopCh:
					// 本地 Close 触发的读错误，不算异常
				default:
					c.log.Warnf("读取错误: %v", err)
				}
			}
			return
		}

		c.deliver(data)
	}
}

// deliver 解析并投递一条入站负载。
// 心跳回应被吞掉；其余解析失败的负载按 Raw 透传，从不让坏消息杀死通道。
func (c *Channel) deliver(data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' {
		if s := string(trimmed); s == "PONG" || s == "pong" {
			return
		}
	}

	msg := Message{Raw: data}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err == nil {
		msg.Envelope = &env
	} else {
		c.log.Debugf("无法解析的负载 (length=%d)，按原始数据透传", len(data))
	}

	select {
	case c.msgCh <- msg:
	default:
		// 缓冲区满：丢最新一条并记日志。feed 每条消息都是全量快照，
		// 丢一条只意味着视图晚 1 秒收敛。
		c.log.Warnf("消息缓冲区已满，丢弃一条消息")
	}
}

// pingLoop 定期发送 PING 文本心跳
func (c *Channel) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.doneCh:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			var err error
			if conn != nil {
				err = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
			}
			c.connMu.Unlock()
			if err != nil {
				c.log.Debugf("PING 发送失败: %v", err)
			}
		}
	}
}
