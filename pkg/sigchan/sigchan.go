package sigchan

// Chan 是一个非阻塞的信号 channel，用于通知"有事发生"但不传递数据。
// reconciler 每次替换视图状态后 Emit 一次，dashboard 在 select 中监听。
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel
func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞，channel 已满时丢弃）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}
