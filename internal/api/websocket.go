// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/services"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// 事件类型
const (
	EventNotification   = "notification"
	EventRemoteProgress = "remote_progress"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 64
)

// 控制台只在本机使用，不校验来源
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event 推送给浏览器的事件
type Event struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// eventClient 一个浏览器连接
type eventClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed int32
}

func (c *eventClient) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.conn.Close()
	}
}

// EventHub 把提示与进度转发给所有浏览器连接
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*eventClient
	logger  *utils.Logger
}

// NewEventHub 创建事件中心
func NewEventHub(logger *utils.Logger) *EventHub {
	return &EventHub{
		clients: make(map[string]*eventClient),
		logger:  utils.OrDefault(logger),
	}
}

// Notify 实现 notify.Notifier
func (h *EventHub) Notify(n notify.Notification) {
	h.Publish(Event{Type: EventNotification, Data: n, Timestamp: n.Timestamp})
}

// RemoteProgress 作为 DocumentEditor.OnRemoteProgress 的回调
func (h *EventHub) RemoteProgress(topic string, msg services.RemoteProgress) {
	h.Publish(Event{Type: EventRemoteProgress, Topic: topic, Data: msg})
}

// Publish 广播事件。队列已满的连接丢弃这条消息
func (h *EventHub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("事件序列化失败", map[string]interface{}{"type": ev.Type, "err": err.Error()})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if atomic.LoadInt32(&c.closed) == 1 {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("客户端消息队列已满，消息被丢弃", map[string]interface{}{"client": c.id})
		}
	}
}

// Count 当前连接数
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 断开全部连接
func (h *EventHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*eventClient)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *EventHub) register(c *eventClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("事件连接已建立", map[string]interface{}{"client": c.id})
}

func (h *EventHub) unregister(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("事件连接已断开", map[string]interface{}{"client": c.id})
}

// ServeWS GET /ws/events
func (h *EventHub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败", map[string]interface{}{"err": err.Error()})
		return
	}

	client := &eventClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.register(client)

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop 只处理控制帧，浏览器不向控制台发送业务消息
func (h *EventHub) readLoop(c *eventClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(c *eventClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
