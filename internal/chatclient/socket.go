package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("chatclient: not connected")

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	stableAfter      = 10 * time.Second
)

// Options configure the reconnecting socket shared by both adapters.
type Options struct {
	// ServerURL is the websocket endpoint, e.g. ws://host/ws/chat.
	ServerURL string
	Backoff   Backoff
	Dialer    *websocket.Dialer
	OnStatus  func(Status)
	// StableAfter is how long a connection must stay up before the backoff
	// starts over. Defaults to 10s.
	StableAfter time.Duration
	// OnFrame runs after the adapter has applied a frame to its state.
	OnFrame func(Frame)
}

// socket dials, reads and redials until its context ends.
type socket struct {
	opts    Options
	url     func() (string, error)
	header  http.Header
	onOpen  func() error
	onFrame func(Frame)

	mu     sync.Mutex
	ws     *websocket.Conn
	status Status
}

func newSocket(opts Options, url func() (string, error), header http.Header) *socket {
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = stableAfter
	}
	return &socket{opts: opts, url: url, header: header}
}

func (s *socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *socket) setStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	s.mu.Unlock()

	if changed && s.opts.OnStatus != nil {
		s.opts.OnStatus(st)
	}
}

// run blocks until ctx is done, reconnecting with the configured backoff.
func (s *socket) run(ctx context.Context) error {
	attempt := 0
	for {
		s.setStatus(StatusConnecting)
		ws, err := s.dial(ctx)
		if err != nil {
			s.setStatus(StatusDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := s.opts.Backoff.Next(attempt)
			attempt++
			log.Debug().Err(err).Dur("retryIn", delay).Msg("chat connect failed")
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		connectedAt := time.Now()
		s.serve(ctx, ws)
		s.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A server that upgrades and then drops us keeps backing off.
		if time.Since(connectedAt) >= s.opts.StableAfter {
			attempt = 0
		}
		delay := s.opts.Backoff.Next(attempt)
		attempt++
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (s *socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := s.url()
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	ws, resp, err := s.opts.Dialer.DialContext(ctx, u, s.header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return ws, nil
}

func (s *socket) serve(ctx context.Context, ws *websocket.Conn) {
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.mu.Lock()
		s.ws = nil
		s.mu.Unlock()
		ws.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	s.setStatus(StatusConnected)
	if s.onOpen != nil {
		if err := s.onOpen(); err != nil {
			log.Debug().Err(err).Msg("chat handshake failed")
			return
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("chat connection lost")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Debug().Err(err).Msg("ignoring malformed server frame")
			continue
		}
		if s.onFrame != nil {
			s.onFrame(f)
		}
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(f)
		}
	}
}

func (s *socket) send(f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws == nil {
		return ErrNotConnected
	}
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
