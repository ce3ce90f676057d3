package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dreamware/zboard/internal/board"
	"github.com/dreamware/zboard/internal/events"
	"github.com/dreamware/zboard/internal/widget"
)

// RetryPolicy bounds retries of writes that hit a concurrent modification
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first; 1 disables retries
	InitialInterval time.Duration // First backoff delay, growing exponentially
}

// DefaultRetry matches the configuration defaults
var DefaultRetry = RetryPolicy{MaxAttempts: 5, InitialInterval: 10 * time.Millisecond}

// Server serves the board over HTTP
type Server struct {
	svc      *board.Service
	feed     *events.Hub
	logger   *log.Logger
	retry    RetryPolicy
	upgrader websocket.Upgrader

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRetry sets the retry policy for conflicting writes
func WithRetry(p RetryPolicy) Option {
	return func(s *Server) { s.retry = p }
}

// WithFeed serves hub's events on /ws
func WithFeed(hub *events.Hub) Option {
	return func(s *Server) { s.feed = hub }
}

// NewServer creates a server for svc
func NewServer(svc *board.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: log.Default(),
		retry:  DefaultRetry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.MaxAttempts < 1 {
		s.retry.MaxAttempts = 1
	}
	return s
}

// Handler returns the routed handler with request logging applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// in-area before {id} so the literal path wins
	r.HandleFunc("/widget/in-area", s.handleInArea).Methods(http.MethodPost)
	r.HandleFunc("/widget", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/widget", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/widget/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/widget/{id}", s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/widget/{id}", s.handleDelete).Methods(http.MethodDelete)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleFeed).Methods(http.MethodGet)

	// mux only runs middleware on matched routes
	r.NotFoundHandler = s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, Problem{Title: "Not Found", Detail: "no route for " + r.URL.Path})
	}))
	r.MethodNotAllowedHandler = s.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, Problem{Title: "Method Not Allowed", Detail: r.Method + " " + r.URL.Path})
	}))

	r.Use(s.logRequests)
	return r
}

// Close ends every open feed connection
// http.Server.Shutdown does not track hijacked connections, so register it
// with RegisterOnShutdown.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// withRetry runs op until it succeeds, fails with anything other than a
// concurrent modification, or the policy is exhausted
func (s *Server) withRetry(ctx context.Context, op func() error) error {
	if s.retry.MaxAttempts == 1 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retry.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !widget.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		s.logger.Debug("retrying after concurrent modification", "in", next, "err", err)
	})
}

// fail writes the problem response for err
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, title := status(err)
	detail := err.Error()
	switch code {
	case http.StatusConflict:
		s.logger.Warn("giving up after concurrent modifications", "method", r.Method, "path", r.URL.Path, "attempts", s.retry.MaxAttempts)
	case http.StatusInternalServerError:
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("request canceled", "path", r.URL.Path)
		} else {
			s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		detail = "internal error"
	}
	writeProblem(w, code, Problem{Title: title, Detail: detail})
}
