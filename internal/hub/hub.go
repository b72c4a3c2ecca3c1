package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"vertigrow/internal/metrics"
	"vertigrow/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Входящие команды клиента
const (
	CommandPing      = "ping"
	CommandGetLatest = "get_latest"
	CommandSetPlant  = "set_plant"
)

// Command входящее сообщение клиента
type Command struct {
	Type      string `json:"type"`
	TowerID   string `json:"towerId,omitempty"`
	PlantType string `json:"plantType,omitempty"`
}

// CommandHandler обрабатывает команды, меняющие состояние симуляции.
// Возвращенные данные отправляются клиенту в ответном сообщении.
type CommandHandler func(cmd Command) (string, interface{}, error)

// SnapshotFunc текущее состояние для новых клиентов
type SnapshotFunc func() interface{}

// Hub рассылает сообщения всем подключенным клиентам. Гарантий доставки
// и порядка нет: медленный клиент с переполненной очередью отключается.
type Hub struct {
	upgrader   websocket.Upgrader
	origins    map[string]bool
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	snapshot   SnapshotFunc
	commands   CommandHandler
	count      atomic.Int64
	sent       atomic.Uint64
	dropped    atomic.Uint64
}

// Client подключение одного дашборда
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// New создает хаб. snapshot и commands могут быть nil.
func New(snapshot SnapshotFunc, commands CommandHandler) *Hub {
	h := &Hub{
		origins:    make(map[string]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		commands:   commands,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigins разрешает подключения с перечисленных origin помимо
// собственного хоста. "*" разрешает любой origin.
// Вызывается до начала обслуживания запросов.
func (h *Hub) AllowOrigins(origins ...string) {
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o != "" {
			h.origins[o] = true
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.origins["*"] || h.origins[strings.ToLower(origin)] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Run обслуживает регистрацию и рассылку до отмены контекста
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			metrics.WebSocketClients.Set(float64(len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.enqueue(msg) {
					h.sent.Add(1)
				} else {
					// Клиент не успевает читать
					h.dropped.Add(1)
					metrics.BroadcastMessages.WithLabelValues("broadcast", "dropped_client").Inc()
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	client.close()
	h.count.Store(int64(len(h.clients)))
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// Broadcast ставит сообщение в очередь рассылки. Не блокирует.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(models.Message{Type: msgType, Data: data, Timestamp: time.Now()})
	if err != nil {
		log.Printf("Failed to marshal %s message: %v", msgType, err)
		return
	}

	select {
	case h.broadcast <- payload:
		metrics.BroadcastMessages.WithLabelValues(msgType, "queued").Inc()
	case <-h.done:
	default:
		metrics.BroadcastMessages.WithLabelValues(msgType, "dropped").Inc()
	}
}

// ClientCount число подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Stats статистика хаба
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"clients":         h.ClientCount(),
		"messages_sent":   h.sent.Load(),
		"clients_dropped": h.dropped.Load(),
		"queue_size":      len(h.broadcast),
	}
}

// ServeHTTP обрабатывает GET /ws
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	// Первым сообщением клиент получает текущее состояние
	if h.snapshot != nil {
		client.reply(models.MessageSnapshot, h.snapshot())
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// reply кладет ответ в очередь клиента, не блокируя
func (c *Client) reply(msgType string, data interface{}) {
	payload, err := json.Marshal(models.Message{Type: msgType, Data: data, Timestamp: time.Now()})
	if err != nil {
		log.Printf("Failed to marshal %s reply: %v", msgType, err)
		return
	}
	if !c.enqueue(payload) {
		metrics.BroadcastMessages.WithLabelValues(msgType, "dropped").Inc()
	}
}

// enqueue кладет сообщение в очередь, если она открыта и не переполнена
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.reply(models.MessageError, map[string]string{"error": "invalid message"})
		return
	}

	switch cmd.Type {
	case CommandPing:
		c.reply(models.MessagePong, nil)
	case CommandGetLatest:
		if c.hub.snapshot != nil {
			c.reply(models.MessageSnapshot, c.hub.snapshot())
		}
	default:
		if c.hub.commands == nil {
			c.reply(models.MessageError, map[string]string{"error": "unknown command " + cmd.Type})
			return
		}
		msgType, data, err := c.hub.commands(cmd)
		if err != nil {
			c.reply(models.MessageError, map[string]string{"error": err.Error()})
			return
		}
		c.reply(msgType, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
