package chat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/audit"
	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
	"github.com/northlane/livechat-server/internal/metrics"
	"github.com/northlane/livechat-server/internal/middleware"
	"github.com/northlane/livechat-server/internal/util"
)

type ServerConfig struct {
	AllowedOrigins []string
	FrameRate      float64
	FrameBurst     int
	QueueSize      int
}

// Server authenticates the websocket handshake and hands each upgraded
// socket to the protocol handler. Role and identity are fixed at upgrade.
type Server struct {
	handler  FrameHandler
	auth     middleware.AdminAuthenticator
	cfg      ServerConfig
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(handler FrameHandler, auth middleware.AdminAuthenticator, cfg ServerConfig) *Server {
	s := &Server{
		handler: handler,
		auth:    auth,
		cfg:     cfg,
		conns:   make(map[*Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := Role(q.Get("type"))
	opts := ConnOptions{
		QueueSize:  s.cfg.QueueSize,
		FrameRate:  s.cfg.FrameRate,
		FrameBurst: s.cfg.FrameBurst,
	}

	switch role {
	case RoleVisitor:
		visitorID := q.Get("visitorId")
		if !util.IsValidVisitorID(visitorID) {
			s.reject(w, "invalid_visitor", apperrors.InvalidInput("visitorId", "must be 1-128 characters of [A-Za-z0-9_-]"))
			return
		}
		opts.VisitorID = visitorID

	case RoleAdmin:
		token := middleware.ExtractBearerToken(r)
		if token == "" {
			s.reject(w, "unauthorized", apperrors.Unauthorized("Missing authentication token"))
			return
		}
		session, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("admin socket auth failed")
			s.reject(w, "auth_error", apperrors.Database(err))
			return
		}
		if session == nil {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, Reason: "websocket"})
			s.reject(w, "unauthorized", apperrors.InvalidToken("Invalid or expired token"))
			return
		}
		opts.AdminName = session.DisplayName
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminSocketAccept, AdminID: session.ID})

	default:
		s.reject(w, "invalid_type", apperrors.InvalidInput("type", "must be visitor or admin"))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.ConnectionsRejected.WithLabelValues("upgrade").Inc()
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(ws, role, opts)
	s.track(conn)
	defer s.untrack(conn)

	log.Debug().
		Str("connId", conn.ID).
		Str("role", string(role)).
		Str("visitor", util.Pseudonym(opts.VisitorID)).
		Msg("chat connection opened")

	// The request context ends with this handler; keep values, drop any
	// deadline a router middleware may have set.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn.serve(ctx, s.handler)
}

// Shutdown closes every open socket, registered or not.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) reject(w http.ResponseWriter, reason string, err *apperrors.AppError) {
	metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	httputil.WriteError(w, err)
}

// checkOrigin allows requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin. An empty list or
// "*" allows every origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
