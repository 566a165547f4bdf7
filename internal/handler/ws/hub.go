package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/internal/services/candles"
	xlogger "EduX/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
	maxMessage = 4096
)

// Controller is what websocket clients may drive. It may be nil for a read-only feed.
type Controller interface {
	SelectSymbol(ctx context.Context, symbol string) error
	SetTimeframe(ctx context.Context, tf domrepo.Timeframe) error
}

// Frame is one message sent to clients.
type Frame struct {
	Type      string             `json:"type"`
	Symbol    string             `json:"symbol,omitempty"`
	Timeframe string             `json:"timeframe,omitempty"`
	Candles   []models.Candle    `json:"candles"`
	Volumes   []models.VolumeBar `json:"volumes"`
	Candle    *models.Candle     `json:"candle,omitempty"`
	Volume    *models.VolumeBar  `json:"volume,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// command is one message received from a client.
type command struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans the displayed series out to websocket clients. It is a candles.Sink;
// Load and Update never block.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	last     []byte
	upgrader websocket.Upgrader
	ctrl     Controller
	metrics  domrepo.Metrics
	log      *xlogger.Logger
}

var _ candles.Sink = (*Hub)(nil)

// NewHub creates an empty, read-only hub.
func NewHub(metrics domrepo.Metrics, log *xlogger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		log:     log,
	}
}

// Bind lets clients drive ctrl. Until then the feed is read-only.
func (h *Hub) Bind(ctrl Controller) {
	h.mu.Lock()
	h.ctrl = ctrl
	h.mu.Unlock()
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Load replaces every client's series and is replayed to clients that join later.
func (h *Hub) Load(symbol string, tf domrepo.Timeframe, cs []models.Candle, vs []models.VolumeBar) {
	// a reset series is sent as [] so clients clear their chart
	if cs == nil {
		cs = []models.Candle{}
	}
	if vs == nil {
		vs = []models.VolumeBar{}
	}
	msg, err := json.Marshal(Frame{Type: "series", Symbol: symbol, Timeframe: tf.String(), Candles: cs, Volumes: vs})
	if err != nil {
		h.log.Error("ws encode series", xlogger.Error(err))
		return
	}
	h.mu.Lock()
	h.last = msg
	h.mu.Unlock()
	h.broadcast(msg)
}

func (h *Hub) Update(symbol string, tf domrepo.Timeframe, c models.Candle, v models.VolumeBar) {
	msg, err := json.Marshal(Frame{Type: "update", Symbol: symbol, Timeframe: tf.String(), Candle: &c, Volume: &v})
	if err != nil {
		h.log.Error("ws encode update", xlogger.Error(err))
		return
	}
	h.broadcast(msg)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// slow consumer: it reloads the series on reconnect
			h.metrics.RecordError("ws_slow_client")
			h.log.Warn("ws client dropped", xlogger.String("client", id))
			c.close()
			delete(h.clients, id)
		}
	}
}

// Serve upgrades the request and runs the client until it disconnects.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.last != nil {
		cl.send <- h.last
	}
	h.clients[cl.id] = cl
	h.mu.Unlock()

	h.log.Debug("ws client connected", xlogger.String("client", cl.id), xlogger.String("remote", c.RealIP()))

	go h.writeLoop(cl)
	h.readLoop(c.Request().Context(), cl)
	return nil
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		cl.close()
	}
	h.mu.Unlock()
}

func (h *Hub) readLoop(ctx context.Context, cl *client) {
	defer func() {
		h.remove(cl)
		h.log.Debug("ws client disconnected", xlogger.String("client", cl.id))
	}()

	cl.conn.SetReadLimit(maxMessage)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(cl, Frame{Type: "error", Error: "malformed command"})
			continue
		}
		if err := h.apply(ctx, cmd); err != nil {
			h.reply(cl, Frame{Type: "error", Error: err.Error()})
		}
	}
}

func (h *Hub) apply(ctx context.Context, cmd command) error {
	h.mu.RLock()
	ctrl := h.ctrl
	h.mu.RUnlock()
	if ctrl == nil {
		return errReadOnly
	}
	switch cmd.Type {
	case "symbol":
		return ctrl.SelectSymbol(ctx, cmd.Symbol)
	case "timeframe":
		return ctrl.SetTimeframe(ctx, domrepo.Timeframe(cmd.Timeframe))
	default:
		return errUnknownCommand
	}
}

func (h *Hub) reply(cl *client, f Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[cl.id]; !ok {
		return
	}
	select {
	case cl.send <- msg:
	default:
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
