// Package dashboard serves the live control panel: a websocket event
// stream, a JSON state snapshot, and the Prometheus metrics endpoint.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/mind"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The panel is reached over a private address or a reverse proxy
	// that handles auth.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server pushes pipeline events to connected clients and applies their
// control commands to the runner. It implements mind.Emitter.
type Server struct {
	addr   string
	runner *mind.Runner
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[*client]bool

	httpSrv *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

func NewServer(addr string, runner *mind.Runner, log zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		runner:  runner,
		log:     log,
		clients: make(map[*client]bool),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/state", s.handleState)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("dashboard listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.runner.Snapshot()); err != nil {
		s.log.Error().Err(err).Msg("state encode failed")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan Event, 64)}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("dashboard client connected")

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.apply(cmd)
	}
}

// apply dispatches one client command to the runner.
func (s *Server) apply(cmd Command) {
	switch cmd.Action {
	case "accept_identity":
		if !s.runner.AcceptPendingIdentity(cmd.UserID) {
			s.log.Warn().Str("user", cmd.UserID).Msg("no pending identity to accept")
		}
	case "reject_identity":
		s.runner.RejectPendingIdentity(cmd.UserID)
	case "set_away":
		s.runner.SetBotState(true, cmd.Value, time.Time{})
	case "clear_away":
		s.runner.SetBotState(false, "", time.Time{})
	case "auto_reply":
		s.runner.ToggleAutoReply(cmd.Key, cmd.Enable)
	case "set_engine":
		if err := s.runner.SetPrimaryProvider(cmd.Value); err != nil {
			s.log.Warn().Err(err).Str("engine", cmd.Value).Msg("engine switch failed")
		}
	default:
		s.log.Warn().Str("action", cmd.Action).Msg("unknown dashboard command")
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

// broadcast never blocks the pipeline; a slow client loses events.
func (s *Server) broadcast(evType string, data any) {
	ev := Event{Type: evType, At: time.Now(), Data: data}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

func (s *Server) Activity(identityKey, channelID, content string) {
	s.broadcast("activity", activityData{Identity: identityKey, Channel: channelID, Content: content})
}

func (s *Server) PromptSubmitted(identityKey, engine string, messageCount int) {
	s.broadcast("prompt", promptData{Identity: identityKey, Engine: engine, MessageCount: messageCount})
}

func (s *Server) ResponseReceived(identityKey string, trace ai.Trace, reply string) {
	s.broadcast("response", responseData{
		Identity:    identityKey,
		RequestID:   trace.RequestID,
		Engine:      trace.Engine,
		WasFallback: trace.WasFallback,
		Errors:      trace.Errors,
		Reply:       reply,
	})
}

func (s *Server) AwayChanged(away bool, reason string) {
	s.broadcast("away", awayData{Away: away, Reason: reason})
}

func (s *Server) PendingIdentity(userID, userName, content string) {
	s.broadcast("pending_identity", pendingData{UserID: userID, UserName: userName, Content: content})
}

var _ mind.Emitter = (*Server)(nil)
