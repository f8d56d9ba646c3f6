package room

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRecentRooms is how many finished conversations /rooms reports.
const DefaultRecentRooms = 64

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr             string
	HandshakeTimeout time.Duration
	ShutdownTimeout  time.Duration
	AllowedOrigins   []string
	RecentRooms      int
	WebSocket        WebSocketConfig
	Factory          Factory
	Metrics          http.Handler
	Logger           *slog.Logger
}

// Server accepts websocket rooms and runs one conversation per room.
type Server struct {
	cfg      ServerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	baseMu sync.RWMutex
	base   context.Context

	mu     sync.RWMutex
	live   map[string]Conversation
	recent *lru.Cache[string, Status]
	wg     sync.WaitGroup
}

// NewServer builds a server. Factory is required.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("room server needs a conversation factory")
	}
	if cfg.RecentRooms <= 0 {
		cfg.RecentRooms = DefaultRecentRooms
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recent, err := lru.New[string, Status](cfg.RecentRooms)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		base:   context.Background(),
		live:   make(map[string]Conversation),
		recent: recent,
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      s.originAllowed,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{room}", s.handleRoom)
	mux.HandleFunc("GET /rooms", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe serves until ctx is cancelled, then drains live rooms.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.baseMu.Lock()
	s.base = ctx
	s.baseMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("room server listening", slog.String("addr", s.cfg.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	if !roomNamePattern.MatchString(name) {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	_, busy := s.live[name]
	s.mu.RUnlock()
	if busy {
		http.Error(w, "room already has a conversation", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("room upgrade failed", slog.String("room", name), slog.String("error", err.Error()))
		return
	}

	rm := NewWebSocketRoom(name, conn, s.cfg.WebSocket, s.logger)

	// The conversation outlives the HTTP request; it ends with the room or
	// the server.
	s.baseMu.RLock()
	base := s.base
	s.baseMu.RUnlock()
	ctx, cancel := context.WithCancel(base)
	conv, err := s.cfg.Factory(ctx, rm)
	if err != nil {
		cancel()
		s.logger.Error("conversation setup failed", slog.String("room", name), slog.String("error", err.Error()))
		_ = rm.writeFrame(ServerFrame{Type: FrameError, Message: "conversation setup failed"})
		_ = rm.Close()
		return
	}

	if !s.claim(name, conv) {
		cancel()
		_ = rm.writeFrame(ServerFrame{Type: FrameError, Message: "room already has a conversation"})
		_ = rm.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer rm.Close()

		runErr := conv.Run(ctx)
		status := conv.Status()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			status.Error = runErr.Error()
			s.logger.Warn("conversation ended with error", slog.String("room", name), slog.String("error", runErr.Error()))
		}
		s.release(name, status)
	}()
}

func (s *Server) claim(name string, conv Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.live[name]; busy {
		return false
	}
	s.live[name] = conv
	return true
}

func (s *Server) release(name string, status Status) {
	s.mu.Lock()
	delete(s.live, name)
	s.mu.Unlock()

	if status.EndedAt.IsZero() {
		status.EndedAt = time.Now()
	}
	s.recent.Add(status.ConversationID, status)
}

// RoomsStatus is the body of GET /rooms.
type RoomsStatus struct {
	Live   []Status `json:"live"`
	Recent []Status `json:"recent"`
}

// Snapshot reports live and recently finished conversations.
func (s *Server) Snapshot() RoomsStatus {
	s.mu.RLock()
	live := make([]Status, 0, len(s.live))
	for _, conv := range s.live {
		live = append(live, conv.Status())
	}
	s.mu.RUnlock()
	sort.Slice(live, func(i, j int) bool { return live[i].Room < live[j].Room })

	keys := s.recent.Keys()
	recent := make([]Status, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if st, ok := s.recent.Peek(keys[i]); ok {
			recent = append(recent, st)
		}
	}

	return RoomsStatus{Live: live, Recent: recent}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Snapshot())
}
