package feed

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 分页协议的已知缺陷：orders 通道同时承载推送和分页请求，而线上格式
// 没有请求 ID。这里同时采用两种对策：
//   1. 串行化：有在途请求时拒绝新请求（ErrRequestInFlight）
//   2. 序号扩展：请求附带单调 seq，server 支持时在响应中回显，
//      回显不匹配的响应被当作错配丢弃；server 不回显时退回
//      "下一条入站即响应" 的通道顺序语义

// ErrRequestInFlight 表示已有分页请求在途
var ErrRequestInFlight = errors.New("已有分页请求在途")

// ErrInvalidPage 表示页码非法（page 必须 >= 1）
var ErrInvalidPage = errors.New("页码必须 >= 1")

// Sender 是分页请求的出站通道（由 orders feed 的 Channel 实现）
type Sender interface {
	Send(v interface{}) error
}

// Paginator 把一条全双工通道变成请求->对应响应的分页协议
type Paginator struct {
	mu sync.Mutex

	sender  Sender
	size    int
	timeout time.Duration

	page    int   // 最近一次确认的页码
	seq     int64 // 单调请求序号
	hasNext bool
	stale   bool // 在途请求超时后置位，下一次成功响应清除

	pending      *PageRequest
	pendingTimer *time.Timer

	log *logrus.Entry
}

// NewPaginator 创建分页器。size 为每页条数，timeout 为在途请求的
// 有界等待时长（超时后标记 stale 并允许重试，而不是永远挂起）。
func NewPaginator(sender Sender, size int, timeout time.Duration) *Paginator {
	return &Paginator{
		sender:  sender,
		size:    size,
		timeout: timeout,
		page:    1,
		log:     logrus.WithField("component", "paginator"),
	}
}

// SetSender 更换出站通道（orders feed 重连后由 Manager 调用）
func (p *Paginator) SetSender(sender Sender) {
	p.mu.Lock()
	p.sender = sender
	// 旧连接上的在途请求不可能再有响应
	p.clearPendingLocked()
	p.mu.Unlock()
}

// RequestPage 请求指定页。有在途请求时返回 ErrRequestInFlight。
func (p *Paginator) RequestPage(page int) error {
	if page < 1 {
		return ErrInvalidPage
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender == nil {
		return errors.New("orders 通道未连接")
	}
	if p.pending != nil {
		return ErrRequestInFlight
	}

	p.seq++
	req := &PageRequest{Page: page, Size: p.size, Seq: p.seq}
	if err := p.sender.Send(req); err != nil {
		return err
	}

	p.pending = req
	if p.timeout > 0 {
		seq := req.Seq
		p.pendingTimer = time.AfterFunc(p.timeout, func() {
			p.expire(seq)
		})
	}
	p.log.Debugf("分页请求已发出: page=%d size=%d seq=%d", page, p.size, req.Seq)
	return nil
}

// Observe 观察 orders 通道上的一条入站消息，返回视图层是否应该采纳它。
// 错配的响应（seq 回显与在途请求不一致）返回 false，调用方应丢弃。
func (p *Paginator) Observe(msg Message) bool {
	if msg.IsMalformed() {
		return false
	}
	env := msg.Envelope

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != nil {
		switch {
		case env.Seq != 0 && env.Seq == p.pending.Seq:
			// 序号匹配：这就是在途请求的响应。
			// 错误响应也交给视图层（它会记录错误并保留 last-known-good）。
			p.resolveLocked(env)
			return true
		case env.Seq != 0:
			// 序号不匹配：旧请求的迟到响应，丢弃，继续等待
			p.log.Debugf("丢弃错配响应: seq=%d, 在途 seq=%d", env.Seq, p.pending.Seq)
			return false
		default:
			// server 不支持 seq：通道顺序语义，下一条入站即响应
			p.resolveLocked(env)
			return true
		}
	}

	// 没有在途请求：当前页的周期性推送
	if env.HasData() {
		p.updateHasNextLocked(env)
		p.stale = false
	}
	return true
}

// resolveLocked 用一条响应完成在途请求
func (p *Paginator) resolveLocked(env *Envelope) {
	req := p.pending
	p.clearPendingLocked()

	if !env.HasData() {
		// 请求完成但失败：页码不前进，视图保留 last-known-good
		p.log.Warnf("分页请求失败: page=%d err=%s", req.Page, env.Error)
		return
	}

	p.page = req.Page
	p.stale = false
	p.updateHasNextLocked(env)
}

// updateHasNextLocked 由返回条数推断是否还有下一页：
// 条数少于请求 size 时禁用"下一页"。这是近似而非保证——数据并发变化时
// 短页不一定是末页。
func (p *Paginator) updateHasNextLocked(env *Envelope) {
	var entries []json.RawMessage
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return
	}
	p.hasNext = len(entries) >= p.size
}

// expire 在途请求超时
func (p *Paginator) expire(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil || p.pending.Seq != seq {
		return
	}
	p.log.Warnf("分页请求超时: page=%d seq=%d", p.pending.Page, seq)
	p.pending = nil
	p.pendingTimer = nil
	p.stale = true
}

func (p *Paginator) clearPendingLocked() {
	if p.pendingTimer != nil {
		p.pendingTimer.Stop()
		p.pendingTimer = nil
	}
	p.pending = nil
}

// Page 返回最近一次确认的页码
func (p *Paginator) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Size 返回每页条数
func (p *Paginator) Size() int {
	return p.size
}

// HasNext 返回"下一页"是否可用
func (p *Paginator) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasNext
}

// InFlight 返回是否有在途请求
func (p *Paginator) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Stale 返回最近一次请求是否超时（视图可能落后于请求的页码）
func (p *Paginator) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}
