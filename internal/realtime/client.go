// internal/realtime/client.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// Message 推送给订阅者的消息，Payload 已完成 JSON 解码
type Message struct {
	Topic   string
	Headers map[string]string
	Payload interface{}
	Raw     json.RawMessage
}

// Decode 把原始负载解码到 v
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Raw, v)
}

// Handler 订阅回调
type Handler func(msg Message)

// Options 连接参数
type Options struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	ConnectHeaders    map[string]string
	Dialer            *websocket.Dialer
	Logger            *utils.Logger
}

// subscription 每个主题只保留最后一次注册的回调
type subscription struct {
	id      string // 当前连接上的订阅 ID，未激活时为空
	handler Handler
}

// Client 带自动重连与重新订阅的 STOMP 客户端，每个会话一个实例
type Client struct {
	opts   Options
	logger *utils.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	subs      map[string]*subscription
	byID      map[string]string // 订阅 ID -> 主题
	listeners []func(connected bool)

	writeMu   sync.Mutex
	connected int32
	active    int32
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient 创建客户端，Connect 之前不会拨号
func NewClient(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		}
	}
	return &Client{
		opts:   opts,
		logger: utils.OrDefault(opts.Logger),
		subs:   make(map[string]*subscription),
		byID:   make(map[string]string),
	}
}

// IsConnected 是否已收到 CONNECTED
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// OnStateChange 注册连接状态回调
func (c *Client) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect 启动连接循环，断线后按固定间隔无限重试
func (c *Client) Connect(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&c.active, 0, 1) {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.loop(loopCtx)
	}()
}

// Close 断开连接并清空订阅
func (c *Client) Close() {
	if !atomic.CompareAndSwapInt32(&c.active, 1, 0) {
		return
	}

	if c.IsConnected() {
		_ = c.write(NewFrame(CmdDisconnect, "receipt", "disconnect-"+uuid.NewString()))
	}

	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.subs = make(map[string]*subscription)
	c.byID = make(map[string]string)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Client) loop(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("WebSocket Disconnected", map[string]interface{}{
			"error":         errString(err),
			"retry_in_ms":   c.opts.ReconnectDelay.Milliseconds(),
			"subscriptions": c.topicCount(),
		})

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// session 一次完整的连接生命周期，返回断开原因
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, http.Header{})
	if err != nil {
		return fmt.Errorf("拨号失败: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.setConnected(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	// 连接被取消时立即关闭，解除阻塞的读
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	connect := NewFrame(CmdConnect,
		"accept-version", "1.2,1.1,1.0",
		"heart-beat", heartbeatHeader(c.opts.HeartbeatOutgoing, c.opts.HeartbeatIncoming),
		"host", hostOf(c.opts.URL),
	)
	for k, v := range c.opts.ConnectHeaders {
		connect.Headers[k] = v
	}
	if err := c.write(connect); err != nil {
		return err
	}

	connected, err := c.awaitConnected(conn)
	if err != nil {
		return err
	}
	sendEvery, expectEvery := negotiate(c.opts.HeartbeatOutgoing, c.opts.HeartbeatIncoming, connected.Header("heart-beat"))

	c.setConnected(true)
	c.logger.Info("WebSocket Connected", map[string]interface{}{
		"url":     c.opts.URL,
		"version": connected.Header("version"),
	})
	c.resubscribeAll()

	if sendEvery > 0 {
		go c.heartbeat(sendEvery, stop)
	}
	return c.readLoop(conn, expectEvery)
}

func (c *Client) awaitConnected(conn *websocket.Conn) (*Frame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("等待 CONNECTED 失败: %w", err)
		}
		frames, err := Decode(data)
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			switch f.Command {
			case CmdConnected:
				_ = conn.SetReadDeadline(time.Time{})
				return f, nil
			case CmdError:
				return nil, fmt.Errorf("STOMP 错误: %s", f.Header("message"))
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, expectEvery time.Duration) error {
	for {
		if expectEvery > 0 {
			// 留出一倍的容差
			_ = conn.SetReadDeadline(time.Now().Add(2 * expectEvery))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		frames, err := Decode(data)
		if err != nil {
			c.logger.Error("Failed to decode frame", map[string]interface{}{"error": err.Error()})
			continue
		}
		for _, f := range frames {
			switch f.Command {
			case CmdMessage:
				c.dispatch(f)
			case CmdError:
				c.logger.Error("WebSocket Error", map[string]interface{}{
					"message": f.Header("message"),
					"body":    string(f.Body),
				})
			case CmdReceipt:
				c.logger.Debug("WebSocket receipt", map[string]interface{}{"receipt-id": f.Header("receipt-id")})
			}
		}
	}
}

func (c *Client) heartbeat(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeRaw([]byte("\n")); err != nil {
				return
			}
		}
	}
}

// dispatch 只投递给订阅 ID 仍然有效的回调
func (c *Client) dispatch(f *Frame) {
	subID := f.Header("subscription")

	c.mu.Lock()
	topic, ok := c.byID[subID]
	var handler Handler
	if ok {
		if sub := c.subs[topic]; sub != nil && sub.id == subID {
			handler = sub.handler
		}
	}
	c.mu.Unlock()

	if handler == nil {
		c.logger.Debug("丢弃未知订阅的消息", map[string]interface{}{"subscription": subID})
		return
	}

	var payload interface{}
	if err := json.Unmarshal(f.Body, &payload); err != nil {
		c.logger.Error("Failed to parse message", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return
	}
	handler(Message{Topic: topic, Headers: f.Headers, Payload: payload, Raw: append(json.RawMessage(nil), f.Body...)})
}

// Subscribe 同一主题先退订再订阅，未连接时排队
func (c *Client) Subscribe(topic string, handler Handler) {
	if handler == nil {
		return
	}
	c.Unsubscribe(topic)

	c.mu.Lock()
	sub := &subscription{handler: handler}
	c.subs[topic] = sub
	c.mu.Unlock()

	if c.IsConnected() {
		if err := c.activate(topic, sub); err != nil {
			c.logger.Error("Failed to subscribe", map[string]interface{}{"topic": topic, "error": err.Error()})
		}
	}
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	if ok {
		delete(c.subs, topic)
		if sub.id != "" {
			delete(c.byID, sub.id)
		}
	}
	c.mu.Unlock()

	if ok && sub.id != "" && c.IsConnected() {
		_ = c.write(NewFrame(CmdUnsubscribe, "id", sub.id))
	}
}

// Topics 当前登记的主题
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

func (c *Client) topicCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) activate(topic string, sub *subscription) error {
	id := "sub-" + uuid.NewString()

	c.mu.Lock()
	if c.subs[topic] != sub || sub.id != "" {
		// 已被替换或已激活
		c.mu.Unlock()
		return nil
	}
	sub.id = id
	c.byID[id] = topic
	c.mu.Unlock()

	return c.write(NewFrame(CmdSubscribe, "id", id, "destination", topic, "ack", "auto"))
}

// resubscribeAll 每次连上后用最后一次的回调重新订阅全部主题
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	pending := make(map[string]*subscription, len(c.subs))
	for topic, sub := range c.subs {
		pending[topic] = sub
	}
	c.byID = make(map[string]string)
	for _, sub := range pending {
		sub.id = ""
	}
	c.mu.Unlock()

	for topic, sub := range pending {
		if err := c.activate(topic, sub); err != nil {
			c.logger.Error("Failed to resubscribe", map[string]interface{}{"topic": topic, "error": err.Error()})
		}
	}
}

// Publish 未连接时只记录日志并丢弃
func (c *Client) Publish(destination string, body interface{}) {
	if !c.IsConnected() {
		c.logger.Error("WebSocket not connected", map[string]interface{}{"destination": destination})
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("Failed to send message", map[string]interface{}{"destination": destination, "error": err.Error()})
		return
	}
	f := NewFrame(CmdSend, "destination", destination, "content-type", "application/json")
	f.Body = data
	if err := c.write(f); err != nil {
		c.logger.Error("Failed to send message", map[string]interface{}{"destination": destination, "error": err.Error()})
	}
}

var errNoConnection = errors.New("no websocket connection")

func (c *Client) write(f *Frame) error {
	return c.writeRaw(f.Encode())
}

func (c *Client) writeRaw(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNoConnection
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) setConnected(v bool) {
	var nv int32
	if v {
		nv = 1
	}
	if atomic.SwapInt32(&c.connected, nv) == nv {
		return
	}
	c.mu.Lock()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}

func heartbeatHeader(out, in time.Duration) string {
	return strconv.FormatInt(out.Milliseconds(), 10) + "," + strconv.FormatInt(in.Milliseconds(), 10)
}

// negotiate 按 STOMP 规则计算双方心跳周期
func negotiate(out, in time.Duration, server string) (send, expect time.Duration) {
	sx, sy := parseHeartbeat(server)
	if out > 0 && sy > 0 {
		send = maxDuration(out, sy)
	}
	if in > 0 && sx > 0 {
		expect = maxDuration(in, sx)
	}
	return send, expect
}

func parseHeartbeat(h string) (time.Duration, time.Duration) {
	parts := strings.Split(h, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func hostOf(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return s
}
