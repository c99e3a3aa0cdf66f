package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// broker 进程内的最小 STOMP 服务端
type broker struct {
	t        *testing.T
	mu       sync.Mutex
	conn     *websocket.Conn
	frames   []*Frame
	active   map[string]string // 订阅 ID -> 主题
	connects int
	reject   bool
}

func newBroker(t *testing.T) (*broker, string) {
	b := &broker{t: t, active: make(map[string]string)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		reject := b.reject
		b.mu.Unlock()
		if reject {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.serve(conn)
	}))
	t.Cleanup(srv.Close)
	return b, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/websocket"
}

func (b *broker) serve(conn *websocket.Conn) {
	b.mu.Lock()
	b.conn = conn
	b.active = make(map[string]string)
	b.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := Decode(data)
		if err != nil {
			continue
		}
		for _, f := range frames {
			b.mu.Lock()
			b.frames = append(b.frames, f)
			switch f.Command {
			case CmdConnect:
				b.connects++
				_ = conn.WriteMessage(websocket.TextMessage, NewFrame(CmdConnected, "version", "1.2", "heart-beat", "0,0").Encode())
			case CmdSubscribe:
				b.active[f.Header("id")] = f.Header("destination")
			case CmdUnsubscribe:
				delete(b.active, f.Header("id"))
			}
			b.mu.Unlock()
		}
	}
}

func (b *broker) subscriptionsFor(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for id, tp := range b.active {
		if tp == topic {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *broker) deliver(subID, topic, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := NewFrame(CmdMessage, "subscription", subID, "destination", topic, "message-id", "m1")
	f.Body = []byte(body)
	require.NoError(b.t, b.conn.WriteMessage(websocket.TextMessage, f.Encode()))
}

func (b *broker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

func (b *broker) sent(command string) []*Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Frame
	for _, f := range b.frames {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

func newTestClient(url string) *Client {
	return NewClient(Options{
		URL:               url,
		ReconnectDelay:    20 * time.Millisecond,
		HeartbeatIncoming: 4 * time.Second,
		HeartbeatOutgoing: 4 * time.Second,
		Logger:            utils.NewNopLogger(),
	})
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribeReplacesHandler(t *testing.T) {
	b, url := newBroker(t)
	c := newTestClient(url)
	c.Connect(context.Background())
	defer c.Close()
	waitConnected(t, c)

	var mu sync.Mutex
	var gotA, gotB int
	c.Subscribe("T", func(Message) { mu.Lock(); gotA++; mu.Unlock() })
	c.Subscribe("T", func(Message) { mu.Lock(); gotB++; mu.Unlock() })

	require.Eventually(t, func() bool { return len(b.sent(CmdUnsubscribe)) == 1 && len(b.subscriptionsFor("T")) == 1 }, time.Second, 5*time.Millisecond)

	ids := b.subscriptionsFor("T")
	require.Len(t, ids, 1)
	b.deliver(ids[0], "T", `{"progress":10}`)

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return gotB == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, gotA)
	mu.Unlock()
	assert.Equal(t, []string{"T"}, c.Topics())
}

func TestQueuedSubscriptionActivatesOnConnect(t *testing.T) {
	b, url := newBroker(t)
	c := newTestClient(url)

	got := make(chan Message, 1)
	c.Subscribe("/topic/projects/1/progress", func(m Message) { got <- m })
	assert.False(t, c.IsConnected())

	c.Connect(context.Background())
	defer c.Close()
	waitConnected(t, c)

	require.Eventually(t, func() bool { return len(b.subscriptionsFor("/topic/projects/1/progress")) == 1 }, time.Second, 5*time.Millisecond)
	id := b.subscriptionsFor("/topic/projects/1/progress")[0]
	b.deliver(id, "/topic/projects/1/progress", `{"chapter":"2","status":"done"}`)

	select {
	case m := <-got:
		var body struct {
			Chapter string `json:"chapter"`
			Status  string `json:"status"`
		}
		require.NoError(t, m.Decode(&body))
		assert.Equal(t, "2", body.Chapter)
		assert.Equal(t, "done", body.Status)
		payload, ok := m.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "done", payload["status"])
	case <-time.After(time.Second):
		t.Fatal("没有收到消息")
	}
}

func TestResubscribeAfterReconnect(t *testing.T) {
	b, url := newBroker(t)
	c := newTestClient(url)

	var states []bool
	var smu sync.Mutex
	c.OnStateChange(func(v bool) { smu.Lock(); states = append(states, v); smu.Unlock() })

	c.Connect(context.Background())
	defer c.Close()
	waitConnected(t, c)

	got := make(chan string, 4)
	c.Subscribe("T", func(m Message) { got <- "first" })
	c.Subscribe("T", func(m Message) { got <- "last" })
	require.Eventually(t, func() bool { return len(b.subscriptionsFor("T")) == 1 }, time.Second, 5*time.Millisecond)

	b.drop()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.connects >= 2
	}, 2*time.Second, 5*time.Millisecond)
	waitConnected(t, c)
	require.Eventually(t, func() bool { return len(b.subscriptionsFor("T")) == 1 }, time.Second, 5*time.Millisecond)

	b.deliver(b.subscriptionsFor("T")[0], "T", `"hello"`)
	select {
	case who := <-got:
		assert.Equal(t, "last", who)
	case <-time.After(time.Second):
		t.Fatal("重连后没有收到消息")
	}

	smu.Lock()
	assert.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, []bool{true, false}, states[:2])
	smu.Unlock()
}

func TestPublishWhenDisconnectedIsDropped(t *testing.T) {
	b, url := newBroker(t)
	c := newTestClient(url)

	c.Publish("/app/chat", map[string]string{"text": "lost"})

	c.Connect(context.Background())
	defer c.Close()
	waitConnected(t, c)

	c.Publish("/app/chat", map[string]string{"text": "kept"})
	require.Eventually(t, func() bool { return len(b.sent(CmdSend)) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"text":"kept"}`, string(b.sent(CmdSend)[0].Body))
}

func TestInvalidPayloadSkipsHandler(t *testing.T) {
	b, url := newBroker(t)
	c := newTestClient(url)
	c.Connect(context.Background())
	defer c.Close()
	waitConnected(t, c)

	called := make(chan struct{}, 2)
	c.Subscribe("T", func(Message) { called <- struct{}{} })
	require.Eventually(t, func() bool { return len(b.subscriptionsFor("T")) == 1 }, time.Second, 5*time.Millisecond)
	id := b.subscriptionsFor("T")[0]

	b.deliver(id, "T", "not json")
	b.deliver(id, "T", `{"ok":true}`)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("有效消息未投递")
	}
	assert.Len(t, called, 0)
}

func TestNegotiateHeartbeat(t *testing.T) {
	send, expect := negotiate(4*time.Second, 4*time.Second, "10000,0")
	assert.Equal(t, time.Duration(0), send)
	assert.Equal(t, 10*time.Second, expect)

	send, expect = negotiate(4*time.Second, 4*time.Second, "1000,1000")
	assert.Equal(t, 4*time.Second, send)
	assert.Equal(t, 4*time.Second, expect)
}
