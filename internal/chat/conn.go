package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/northlane/livechat-server/internal/config"
	"github.com/northlane/livechat-server/internal/metrics"
)

type Role string

const (
	RoleVisitor Role = "visitor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleVisitor || r == RoleAdmin
}

// Conn is one live websocket. Outbound frames go through a bounded queue
// drained by the write pump; Enqueue never blocks.
type Conn struct {
	ID   string
	Role Role

	// VisitorID is set for visitor connections, AdminName for admin ones.
	VisitorID string
	AdminName string

	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu        sync.Mutex
	sessionID string

	closeOnce sync.Once
	done      chan struct{}
}

type ConnOptions struct {
	VisitorID  string
	AdminName  string
	QueueSize  int
	FrameRate  float64
	FrameBurst int
}

func newConn(ws *websocket.Conn, role Role, opts ConnOptions) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = config.WSSendBufferSize
	}
	limit := rate.Inf
	if opts.FrameRate > 0 {
		limit = rate.Limit(opts.FrameRate)
	}
	burst := opts.FrameBurst
	if burst <= 0 {
		burst = 1
	}

	return &Conn{
		ID:        uuid.NewString(),
		Role:      role,
		VisitorID: opts.VisitorID,
		AdminName: opts.AdminName,
		ws:        ws,
		send:      make(chan []byte, opts.QueueSize),
		limiter:   rate.NewLimiter(limit, burst),
		done:      make(chan struct{}),
	}
}

// SessionID returns the session a visitor connection is bound to, or "".
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conn) bind(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// Enqueue queues an encoded frame. It reports false when the queue is full
// or the connection is closed.
func (c *Conn) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket. Safe to call more
// than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// FrameHandler consumes inbound frames and is told when the connection ends.
type FrameHandler interface {
	HandleFrame(ctx context.Context, conn *Conn, data []byte)
	Disconnect(conn *Conn)
}

// serve runs the write pump in the background and the read pump on the
// calling goroutine until the socket fails or Close is called.
func (c *Conn) serve(ctx context.Context, h FrameHandler) {
	metrics.ConnectionsActive.WithLabelValues(string(c.Role)).Inc()
	defer metrics.ConnectionsActive.WithLabelValues(string(c.Role)).Dec()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(ctx, h)

	h.Disconnect(c)
	c.Close()
	<-writerDone
}

func (c *Conn) readPump(ctx context.Context, h FrameHandler) {
	c.ws.SetReadLimit(config.WSMaxFrameSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(config.WSPongWait)); err != nil {
		log.Error().Err(err).Str("connId", c.ID).Msg("failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("connId", c.ID).Msg("websocket closed unexpectedly")
			}
			return
		}

		if msgType != websocket.TextMessage {
			metrics.RecordDrop(metrics.DropMalformed)
			continue
		}

		if !c.limiter.Allow() {
			metrics.RecordDrop(metrics.DropRateLimited)
			log.Debug().Str("connId", c.ID).Msg("frame dropped, rate limit")
			continue
		}

		h.HandleFrame(ctx, c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("connId", c.ID).Msg("websocket write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
