package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/metrics"
)

// WebSocket message types
const (
	MessageTypeData      = "data"
	MessageTypeError     = "error"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage is a server to client stream message.
type WSMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Dashboard interface{} `json:"dashboard,omitempty"`
	Error     string      `json:"error,omitempty"`
	Note      string      `json:"note,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader allows requests without an Origin header (non-browser clients),
// any origin when the list is ["*"], and otherwise a case-insensitive match.
// An empty list falls back to the local development origins.
func newUpgrader(allowed []string) websocket.Upgrader {
	if len(allowed) == 0 {
		allowed = defaultOrigins
	}
	set := make(map[string]bool, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(o)] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			return set[strings.ToLower(origin)]
		},
	}
}

// WSConnection is one dashboard stream.
type WSConnection struct {
	conn      *websocket.Conn
	server    *Server
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string

	subMu   sync.Mutex
	current *DashboardRequest
	changed chan struct{}
}

// handleDashboardStream — GET /api/v1/dashboards/stream
//
// The client sends a DashboardRequest; the server answers at once and then
// pushes fresh data every stream interval until the client subscribes to
// something else or disconnects.
func (s *Server) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	wsc := &WSConnection{
		conn:      conn,
		server:    s,
		ctx:       ctx,
		cancel:    cancel,
		sessionID: uuid.NewString(),
		changed:   make(chan struct{}, 1),
	}

	s.wg.Add(1)
	metrics.StreamClients.Inc()
	s.logger.Info("dashboard stream opened", zap.String("session", wsc.sessionID))
	wsc.handle()
}

func (wsc *WSConnection) handle() {
	defer func() {
		wsc.cancel()
		wsc.conn.Close()
		metrics.StreamClients.Dec()
		wsc.server.wg.Done()
		wsc.server.logger.Info("dashboard stream closed", zap.String("session", wsc.sessionID))
	}()

	go wsc.readLoop()
	wsc.pushLoop()
}

// readLoop takes subscription updates until the client goes away.
func (wsc *WSConnection) readLoop() {
	defer wsc.cancel()
	for {
		var req DashboardRequest
		if err := wsc.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsc.server.logger.Debug("websocket read error", zap.String("session", wsc.sessionID), zap.Error(err))
			}
			return
		}
		if err := req.resolve(); err != nil {
			wsc.sendError(err.Error())
			continue
		}
		wsc.subMu.Lock()
		wsc.current = &req
		wsc.subMu.Unlock()
		select {
		case wsc.changed <- struct{}{}:
		default:
		}
	}
}

func (wsc *WSConnection) pushLoop() {
	ticker := time.NewTicker(wsc.server.streamInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(wsc.server.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-wsc.ctx.Done():
			return
		case <-wsc.changed:
			ticker.Reset(wsc.server.streamInterval)
			wsc.push()
		case <-ticker.C:
			wsc.push()
		case <-heartbeat.C:
			if err := wsc.send(&WSMessage{Type: MessageTypeHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (wsc *WSConnection) push() {
	wsc.subMu.Lock()
	req := wsc.current
	wsc.subMu.Unlock()
	if req == nil {
		return
	}
	dash := wsc.server.deps.Dashboards.GetDashboardData(wsc.ctx, req.Panels, req.TimeRange)
	if err := wsc.send(&WSMessage{Type: MessageTypeData, Dashboard: dash, Note: wsc.server.degradedNote()}); err != nil {
		wsc.cancel()
	}
}

func (wsc *WSConnection) send(msg *WSMessage) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	msg.SessionID = wsc.sessionID
	msg.Timestamp = time.Now().UTC()
	_ = wsc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return wsc.conn.WriteJSON(msg)
}

func (wsc *WSConnection) sendError(errMsg string) {
	_ = wsc.send(&WSMessage{Type: MessageTypeError, Error: errMsg})
}
