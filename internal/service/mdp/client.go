package mdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EduX/internal/domain/models"
	drepo "EduX/internal/domain/repository"
	"EduX/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the market data processor websocket.
// The processor broadcasts every ticker to every client, so Subscribe only
// records the connection as ready and filtering happens downstream.
type Client struct {
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	metrics        drepo.Metrics
	log            *logger.Logger
	dialer         *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// Options configures the client.
type Options struct {
	WebsocketURL   string        `yaml:"websocket_url" default:"ws://localhost:9001"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	BufferSize     int           `yaml:"buffer_size" default:"1024"`
}

// New creates a new MDP MarketStream.
func New(opts Options, metrics drepo.Metrics, log *logger.Logger) drepo.MarketStream {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	return &Client{
		websocketURL:   opts.WebsocketURL,
		reconnectDelay: opts.ReconnectDelay,
		pingInterval:   opts.PingInterval,
		bufferSize:     opts.BufferSize,
		metrics:        metrics,
		log:            log,
		dialer:         websocket.DefaultDialer,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("mdp connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("mdp connected", logger.String("url", c.websocketURL))
	return nil
}

// Subscribe checks the connection is up.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("mdp not connected")
	}
	return nil
}

// Read streams decoded events. Undecodable frames are dropped. The error
// channel receives one error when the connection fails; both channels are
// closed when reading stops.
func (c *Client) Read(ctx context.Context) (<-chan models.Event, <-chan error) {
	events := make(chan models.Event, c.bufferSize)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	readCtx, stop := context.WithCancel(ctx)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	// read loop
	go func() {
		defer stop()
		defer close(events)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("mdp conn nil")
			return
		}
		go func() {
			<-readCtx.Done()
			if ctx.Err() != nil {
				_ = conn.Close()
			}
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("mdp read: %w", err)
				}
				return
			}
			ev, ok := Decode(b)
			if !ok {
				continue
			}
			if !c.deliver(ctx, events, ev) {
				return
			}
		}
	}()

	return events, errs
}

// deliver hands ev to the reader. Trades wait for room so a slow consumer
// pushes back on the socket; a snapshot is shed when the buffer is full since
// the next one replaces it. It reports false once ctx is done.
func (c *Client) deliver(ctx context.Context, events chan<- models.Event, ev models.Event) bool {
	if ev.Kind == models.EventOrderBook {
		select {
		case events <- ev:
		case <-ctx.Done():
			return false
		default:
			c.metrics.RecordError("mdp_book_dropped")
			c.log.Debug("mdp buffer full, snapshot dropped", logger.String("ticker", ev.Ticker()))
		}
		return true
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
