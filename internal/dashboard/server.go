// Package dashboard streams sync progress to WebSocket clients.
//
// The server implements domain.SyncObserver, so subscribing it to the
// OfflineService is enough to broadcast every progress event of every cycle.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/hum-tech/tsoam/internal/domain"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeProgress carries one SyncProgress event
	MessageTypeProgress MessageType = "progress"

	// MessageTypeStatus carries a SyncStatus snapshot
	MessageTypeStatus MessageType = "status"
)

const writeTimeout = 5 * time.Second

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ProgressData is the wire form of domain.SyncProgress
type ProgressData struct {
	Step     string   `json:"step"`
	Progress int      `json:"progress"`
	Total    int      `json:"total"`
	Message  string   `json:"message"`
	Errors   []string `json:"errors,omitempty"`
}

// StatusData is the wire form of domain.SyncStatus
type StatusData struct {
	Online            bool       `json:"online"`
	SyncInProgress    bool       `json:"sync_in_progress"`
	PendingOperations int        `json:"pending_operations"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	Degraded          bool       `json:"degraded"`
}

// Coordinator is the part of the offline service the dashboard drives.
type Coordinator interface {
	GetSyncStatus(ctx context.Context) domain.SyncStatus
	ForceSyncAll(ctx context.Context) domain.CycleResult
}

// Config holds server configuration
type Config struct {
	// Addr to listen on; ":0" picks a free port
	Addr string

	// OriginPatterns accepted for cross-origin WebSocket upgrades
	OriginPatterns []string

	Logger *slog.Logger
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr           string
	originPatterns []string
	coord          Coordinator
	listener       net.Listener
	server         *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a dashboard server backed by coord.
func NewServer(cfg Config, coord Coordinator) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:           cfg.Addr,
		originPatterns: cfg.OriginPatterns,
		coord:          coord,
		clients:        make(map[*websocket.Conn]bool),
		broadcast:      make(chan Message, 100),
		ctx:            ctx,
		cancel:         cancel,
		logger:         cfg.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the HTTP routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleSync)
	return mux
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("dashboard stopped")
	return nil
}

// OnProgress implements domain.SyncObserver.
func (s *Server) OnProgress(p domain.SyncProgress) {
	data, err := json.Marshal(ProgressData{
		Step:     p.Step,
		Progress: p.Progress,
		Total:    p.Total,
		Message:  p.Message,
		Errors:   p.Errors,
	})
	if err != nil {
		s.logger.Error("failed to marshal progress", "error", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeProgress, Data: data})
}

// Broadcast sends a message to all connected clients without blocking.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", msg.Type)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", "error", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Debug("failed to send to client", "error", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) statusMessage(ctx context.Context) (Message, error) {
	st := s.coord.GetSyncStatus(ctx)
	out := StatusData{
		Online:            st.Online,
		SyncInProgress:    st.SyncInProgress,
		PendingOperations: st.PendingOperations,
		Degraded:          st.Degraded,
	}
	if !st.LastSync.IsZero() {
		out.LastSync = &st.LastSync
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Greet with the current status before joining the broadcast set
	if msg, err := s.statusMessage(r.Context()); err == nil {
		if data, err := json.Marshal(msg); err == nil {
			_ = s.write(conn, data)
		}
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Info("dashboard client connected", "clients", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the connection open until the client goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	_, exists := s.clients[conn]
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Info("dashboard client disconnected", "clients", clientCount)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	msg, err := s.statusMessage(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(msg.Data)
}

// handleSync runs the cycle on the server's context; a client that
// disconnects early only loses the response.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	done := make(chan domain.CycleResult, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done <- s.coord.ForceSyncAll(s.ctx)
	}()

	var res domain.CycleResult
	select {
	case res = <-done:
	case <-r.Context().Done():
		s.logger.Debug("sync requester went away, cycle continues")
		return
	}
	body := map[string]any{
		"skipped":   res.Skipped,
		"processed": res.Processed,
		"succeeded": res.Succeeded,
		"dropped":   res.Dropped,
		"collected": res.Collected,
		"errors":    res.Errors,
	}
	status := http.StatusOK
	if res.Err != nil {
		body["error"] = res.Err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
