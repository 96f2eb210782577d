package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/logging"
)

// ProtocolVersion is reported by /health.
const ProtocolVersion = 1

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrDisabled is returned by Start when the settings disable the bridge.
var ErrDisabled = errors.New("bridge: server disabled")

// Server wraps the HTTP listener and handlers backing the control bridge.
type Server struct {
	settings Settings
	sink     Sink
	board    *StateBoard
	metrics  http.Handler
	logger   *slog.Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger routes server diagnostics to logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server. Commands go to sink; /state serves
// whatever was last published on board.
func NewServer(settings Settings, sink Sink, board *StateBoard, opts ...Option) *Server {
	if board == nil {
		board = NewStateBoard()
	}
	if sink == nil {
		sink = SinkFunc(func(tea.Msg) {})
	}
	s := &Server{
		settings: settings,
		sink:     sink,
		board:    board,
		logger:   logging.NewNop(),
		clock:    time.Now,
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler builds the chi router. Start serves it; tests can mount it on
// httptest directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Group(func(r chi.Router) {
		r.Use(s.guardCommand)
		r.Post("/step", s.handleStep)
		r.Post("/mode", s.handleMode)
		r.Post("/choice", s.handleChoice)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	return r
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return ErrDisabled
	}
	if err := s.settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.settings.Timeout,
		ReadTimeout:       s.settings.Timeout,
		WriteTimeout:      s.settings.Timeout,
		IdleTimeout:       4 * s.settings.Timeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	s.startTime = s.clock()
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge serve failed", "error", err)
		}
	}()
	s.logger.Info("bridge listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return "http://" + s.settings.Address()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       int    `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type choiceRequest struct {
	Value *string `json:"value"`
	Index *int    `json:"index"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	state, ok := s.board.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no session state yet"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStep(w http.ResponseWriter, _ *http.Request) {
	s.sink.Send(StepCommand{})
	s.logger.Debug("bridge command", "command", "step")
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	cmd := ModeCommand{}
	if raw := strings.TrimSpace(req.Mode); raw != "" {
		mode, ok := display.ParseMode(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown mode %q", raw)})
			return
		}
		cmd.Mode = mode
	}
	s.sink.Send(cmd)
	s.logger.Debug("bridge command", "command", "mode", "mode", cmd.Mode)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleChoice(w http.ResponseWriter, r *http.Request) {
	var req choiceRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var cmd ChoiceCommand
	switch {
	case req.Value != nil && req.Index != nil:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "send either value or index"})
		return
	case req.Value != nil && strings.TrimSpace(*req.Value) != "":
		cmd.Value = strings.TrimSpace(*req.Value)
	case req.Index != nil && *req.Index >= 0:
		cmd.Index = *req.Index
		cmd.ByIndex = true
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value or non-negative index is required"})
		return
	}
	s.sink.Send(cmd)
	s.logger.Debug("bridge command", "command", "choice", "value", cmd.Value, "index", cmd.Index)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// guardCommand rejects commands on a read-only bridge and caps the body.
func (s *Server) guardCommand(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.settings.ReadOnly {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "bridge is read-only"})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.settings.CommandLimit)
		}
		next.ServeHTTP(w, r)
	})
}

// decodeOptional decodes a JSON body into dst; an empty body leaves dst
// untouched.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("payload exceeds limit")
		}
		return fmt.Errorf("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
