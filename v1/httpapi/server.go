// Package httpapi is the network boundary of the lock: a small HTML door
// control page, a JSON API and live event streams. Every request that
// moves the lock goes through the arbiter like any other producer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	"github.com/mirkobrombin/go-doorlock/v1/auth"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/watchbus"
)

const httpSpanName = "doorlock.http"

// StateReader exposes the committed lock state.
type StateReader interface {
	State() lock.State
	Busy() bool
}

// Server serves the door control endpoints.
type Server struct {
	sub      arbiter.Submitter
	state    StateReader
	verifier auth.Verifier
	limiter  *auth.Limiter
	bus      watchbus.WatchBus
	gatherer prometheus.Gatherer
	tracing  bool
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter throttles clients after repeated wrong passcodes.
func WithLimiter(l *auth.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithWatchBus enables /events and /ws.
func WithWatchBus(b watchbus.WatchBus) Option {
	return func(s *Server) { s.bus = b }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithTracing wraps the handler with otelhttp.
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server submitting to sub.
func New(sub arbiter.Submitter, state StateReader, verifier auth.Verifier, opts ...Option) *Server {
	s := &Server{
		sub:      sub,
		state:    state,
		verifier: verifier,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /home", s.home)
	mux.HandleFunc("POST /door-control", s.doorControl)
	mux.HandleFunc("GET /api/state", s.apiState)
	mux.HandleFunc("POST /api/lock", s.apiLock)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.bus != nil {
		mux.Handle("GET /events", watchbus.SSEHandler(s.bus, watchbus.LockTopic))
		mux.Handle("GET /ws", watchbus.WebSocketHandler(s.bus, watchbus.LockTopic))
	}
	if !s.tracing {
		return mux
	}
	return otelhttp.NewHandler(mux, httpSpanName)
}

type httpError struct {
	Status int
	Code   string
	Detail string
}

func (h httpError) Error() string {
	if h.Detail != "" {
		return fmt.Sprintf("%s: %s", h.Code, h.Detail)
	}
	return h.Code
}

var (
	errInvalidAction = httpError{Status: http.StatusBadRequest, Code: "invalid_action", Detail: "action must be lock, unlock or reverse"}
	errInvalidCred   = httpError{Status: http.StatusUnauthorized, Code: "invalid_credential"}
	errLockedOut     = httpError{Status: http.StatusTooManyRequests, Code: "locked_out", Detail: "too many failed attempts"}
	errInUse         = httpError{Status: http.StatusConflict, Code: "in_use", Detail: "lock in use, try later"}
	errInternal      = httpError{Status: http.StatusInternalServerError, Code: "internal_error"}
)

// instructionFor maps a requested action to an API instruction.
func instructionFor(action string) (lock.Instruction, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "lock":
		return lock.EnsureLocked(lock.API), true
	case "unlock":
		return lock.EnsureUnlocked(lock.API), true
	case "reverse":
		return lock.ReverseOf(lock.API), true
	}
	return lock.Instruction{}, false
}

// request authenticates a client and submits its action. The returned
// error is always an httpError.
func (s *Server) request(ctx context.Context, client, action, passcode string) (lock.Instruction, error) {
	in, ok := instructionFor(action)
	if !ok {
		return in, errInvalidAction
	}
	if s.limiter != nil && !s.limiter.Reserve(client) {
		s.logger.Warn("doorlock: client locked out", "client", client)
		return in, errLockedOut
	}
	ok, err := s.verifier.Verify(passcode)
	if err != nil {
		s.logger.Error("doorlock: passcode check failed", "error", err)
		if s.limiter != nil {
			s.limiter.Release(client)
		}
		return in, errInternal
	}
	if !ok {
		s.logger.Info("bad passcode entered", "client", client)
		return in, errInvalidCred
	}
	if s.limiter != nil {
		s.limiter.Succeed(client)
	}
	err = s.sub.Submit(ctx, in)
	switch {
	case err == nil:
		s.logger.Info("api instruction accepted", "instruction", in.String(), "id", in.ID, "client", client)
		return in, nil
	case errors.Is(err, dlerrors.ErrBusy):
		return in, errInUse
	}
	s.logger.Error("doorlock: api instruction not submitted", "error", err, "id", in.ID)
	return in, errInternal
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type stateResponse struct {
	State string `json:"state"`
	Busy  bool   `json:"busy"`
}

func (s *Server) apiState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{State: s.state.State().String(), Busy: s.state.Busy()})
}

type lockRequest struct {
	Action   string `json:"action"`
	Passcode string `json:"passcode"`
}

type lockResponse struct {
	Status      string `json:"status"`
	ID          string `json:"id"`
	Instruction string `json:"instruction"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) apiLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12))
	if err := dec.Decode(&req); err != nil {
		writeError(w, httpError{Status: http.StatusBadRequest, Code: "invalid_body", Detail: err.Error()})
		return
	}
	in, err := s.request(r.Context(), clientKey(r), req.Action, req.Passcode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, lockResponse{Status: "accepted", ID: in.ID, Instruction: in.Kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var he httpError
	if !errors.As(err, &he) {
		he = errInternal
	}
	writeJSON(w, he.Status, errorResponse{Error: he.Code, Detail: he.Detail})
}
