package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer 启动一个测试 WebSocket server，handler 拿到升级后的连接
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvMessage(t *testing.T, ch *Channel) Message {
	t.Helper()
	select {
	case msg, ok := <-ch.Messages():
		if !ok {
			t.Fatal("消息通道被提前关闭")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("等待消息超时")
	}
	return Message{}
}

// TestChannelReceiveEnvelope 入站 JSON 被解析为 Envelope
func TestChannelReceiveEnvelope(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"success":true,"data":[{"id":"p1"}]}`))
		time.Sleep(time.Second)
	})

	ch, err := Open(context.Background(), "positions", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer ch.Close()

	if !ch.Connected() {
		t.Error("Open 成功后应该是 connected")
	}

	msg := recvMessage(t, ch)
	if msg.IsMalformed() {
		t.Fatal("合法 envelope 不应该被标记为 malformed")
	}
	if !msg.Envelope.Success || !msg.Envelope.HasData() {
		t.Errorf("envelope 解析不正确: %+v", msg.Envelope)
	}
}

// TestChannelMalformedPassthrough 解析失败的负载按原始数据透传而不是丢弃
func TestChannelMalformedPassthrough(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{{{not json`))
		time.Sleep(time.Second)
	})

	ch, err := Open(context.Background(), "orderbook", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer ch.Close()

	msg := recvMessage(t, ch)
	if !msg.IsMalformed() {
		t.Fatal("坏负载应该被标记为 malformed")
	}
	if string(msg.Raw) != `{{{not json` {
		t.Errorf("原始负载应该原样透传，得到 %q", msg.Raw)
	}
	// 通道不能因为坏消息而死
	if !ch.Connected() {
		t.Error("坏消息不应该杀死通道")
	}
}

// TestChannelSend 出站消息能被 server 收到
func TestChannelSend(t *testing.T) {
	received := make(chan string, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		time.Sleep(time.Second)
	})

	ch, err := Open(context.Background(), "orders", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer ch.Close()

	if err := ch.Send(&PageRequest{Page: 2, Size: 5, Seq: 7}); err != nil {
		t.Fatalf("Send 失败: %v", err)
	}

	select {
	case got := <-received:
		if !strings.Contains(got, `"page":2`) || !strings.Contains(got, `"seq":7`) {
			t.Errorf("出站消息不正确: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server 未收到出站消息")
	}
}

// TestChannelClose 本地关闭：状态翻转、消息通道关闭、Send 报错
func TestChannelClose(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, err := Open(context.Background(), "positions", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	ch.Close()

	if ch.Connected() {
		t.Error("Close 后应该是 disconnected")
	}

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done 应该在 Close 后关闭")
	}

	if _, ok := <-ch.Messages(); ok {
		t.Error("Close 后消息通道应该被排空并关闭")
	}

	if err := ch.Send(&PageRequest{Page: 1, Size: 5}); err == nil {
		t.Error("Close 后 Send 应该报错")
	}

	// 幂等
	ch.Close()
}

// TestChannelRemoteDisconnect 远端断开：状态翻转、消息通道关闭
func TestChannelRemoteDisconnect(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"data":[]}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	ch, err := Open(context.Background(), "positions", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer ch.Close()

	// 排空消息直到通道关闭
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch.Messages():
			if !ok {
				if ch.Connected() {
					t.Error("远端断开后应该是 disconnected")
				}
				return
			}
		case <-deadline:
			t.Fatal("远端断开后消息通道应该关闭")
		}
	}
}

// TestChannelOpenFailure 连不上时不返回半开资源
func TestChannelOpenFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	if _, err := Open(context.Background(), "positions", "ws://127.0.0.1:1/ws", cfg); err == nil {
		t.Fatal("连接失败应该返回错误")
	}
}

// TestChannelPongSwallowed 心跳回应不进入消息通道
func TestChannelPongSwallowed(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"data":[]}`))
		time.Sleep(time.Second)
	})

	ch, err := Open(context.Background(), "positions", url, DefaultConfig())
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer ch.Close()

	msg := recvMessage(t, ch)
	if msg.IsMalformed() {
		t.Error("PONG 应该被吞掉，第一条业务消息应该是 envelope")
	}
}
