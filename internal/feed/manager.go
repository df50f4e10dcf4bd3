package feed

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager 持有每条 live feed 的推送通道，负责连接、带退避的重连和统一
// 下线。Channel 自身不重连（见 channel.go），重试循环集中在这里。
type Manager struct {
	cfg *Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	channels map[string]*Channel

	log *logrus.Entry
}

// NewManager 创建通道管理器
func NewManager(ctx context.Context, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*Channel),
		log:      logrus.WithField("component", "feed_manager"),
	}
}

// Run 为一条 feed 启动 维持连接 的循环：
//   - onOpen 在每次成功建立连接后调用（拿到新 Channel，可用于重发订阅/分页请求）
//   - handler 收到这条 feed 的每条入站消息
//   - onState 在连接状态变化时调用（驱动 reconciler 的 connectivity 标记）
//
// 连接断开后按 ReconnectDelay * 次数 退避重连，上限 MaxReconnectDelay；
// 成功连接后退避计数清零。Manager Close 后循环退出。
func (m *Manager) Run(name, endpoint string, onOpen func(*Channel), handler func(Message), onState func(bool)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		attempts := 0
		for {
			select {
			case <-m.ctx.Done():
				return
			default:
			}

			ch, err := Open(m.ctx, name, endpoint, m.cfg)
			if err != nil {
				attempts++
				delay := m.backoff(attempts)
				m.log.Warnf("[%s] 连接失败: %v，%v 后重试 (第 %d 次)", name, err, delay, attempts)
				select {
				case <-m.ctx.Done():
					return
				case <-time.After(delay):
				}
				continue
			}

			attempts = 0
			m.track(name, ch)
			if onState != nil {
				onState(true)
			}
			if onOpen != nil {
				onOpen(ch)
			}

			// 消费直到连接结束（Messages 在读循环退出后关闭）
			for msg := range ch.Messages() {
				handler(msg)
			}

			m.untrack(name)
			if onState != nil {
				onState(false)
			}

			select {
			case <-m.ctx.Done():
				return
			default:
				m.log.Infof("[%s] 连接断开，准备重连", name)
			}
		}
	}()
}

// backoff 计算第 n 次重试的延迟（线性递增，封顶）
func (m *Manager) backoff(attempts int) time.Duration {
	delay := m.cfg.ReconnectDelay * time.Duration(attempts)
	if delay > m.cfg.MaxReconnectDelay {
		delay = m.cfg.MaxReconnectDelay
	}
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return delay
}

func (m *Manager) track(name string, ch *Channel) {
	m.mu.Lock()
	m.channels[name] = ch
	m.mu.Unlock()
}

func (m *Manager) untrack(name string) {
	m.mu.Lock()
	delete(m.channels, name)
	m.mu.Unlock()
}

// Channel 返回指定 feed 当前的活跃通道（未连接时返回 nil）
func (m *Manager) Channel(name string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[name]
}

// Close 统一下线：停止所有重连循环并关闭所有活跃通道
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	m.wg.Wait()
	m.log.Infof("所有 feed 通道已关闭")
}
