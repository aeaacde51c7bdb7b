// Package admin serves the live status page, a JSON snapshot of the running
// simulation and a websocket stream of the event journal.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"v2x-sim/internal/orchestrator"
	"v2x-sim/internal/sink"
	"v2x-sim/internal/telemetry"
)

// StatusSource provides the snapshot rendered by the server.
type StatusSource interface {
	Status() orchestrator.Status
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

//go:embed templates/index.html
var content embed.FS

// Server is the admin UI. It also implements sink.Writer so the event
// journal can be fanned out to websocket clients.
type Server struct {
	source   StatusSource
	settings []sink.Setting
	tpl      *template.Template
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewServer creates a server for source. settings are shown on the index page.
func NewServer(source StatusSource, settings []sink.Setting, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{
		source:   source,
		settings: settings,
		tpl:      tpl,
		log:      log,
		clients:  map[*websocket.Conn]bool{},
	}
}

// Handler returns the routes of the admin UI.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start serves until ctx is cancelled. It returns http.ErrServerClosed after
// a clean shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("admin shutdown failed", "err", err)
		}
		s.closeClients()
	}()
	return srv.ListenAndServe()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Settings []sink.Setting
		Status   orchestrator.Status
	}{
		Settings: s.settings,
		Status:   s.source.Status(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index failed", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Status()); err != nil {
		s.log.Error("encode status failed", "err", err)
	}
}

// handleWS upgrades HTTP to websocket and registers the client for broadcasts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.log.Debug("websocket close failed", "err", err)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		s.drop(c)
	}
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// broadcast sends a record to all connected websocket clients. Clients that
// fail to receive are dropped.
func (s *Server) broadcast(rec telemetry.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	var failed []*websocket.Conn
	for c := range s.clients {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			failed = append(failed, c)
		}
	}
	s.mu.Unlock()
	for _, c := range failed {
		s.drop(c)
	}
	return nil
}

func (s *Server) WriteMessage(row telemetry.MessageRow) error {
	return s.broadcast(telemetry.Record{Type: telemetry.RecordMessage, Timestamp: row.Timestamp, Message: &row})
}

func (s *Server) WriteNegotiation(row telemetry.NegotiationRow) error {
	return s.broadcast(telemetry.Record{Type: telemetry.RecordNegotiation, Timestamp: row.Timestamp, Negotiation: &row})
}
