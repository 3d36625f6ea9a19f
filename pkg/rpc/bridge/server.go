// Package bridge exposes a Dispatcher over HTTP for deployed services and
// provides the matching Caller for remote clients. During development the
// in-process Dispatcher serves calls directly; the bridge is the drop-in
// network boundary for everything past that.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mm-zacharydavison/rpckit/pkg/rpc"
)

// errorBody is the JSON error envelope the bridge returns on failure.
type errorBody struct {
	Error   string `json:"error"`
	Pattern string `json:"pattern"`
}

// Server serves dispatch patterns over HTTP. Calls arrive as
// POST /rpc/{pattern} with a JSON payload and return the handler's JSON
// response.
type Server struct {
	dispatcher *rpc.Dispatcher
	log        *zap.Logger
	http       *http.Server
}

// NewServer creates a bridge server around a dispatcher. logger may be nil,
// in which case logging is disabled.
func NewServer(addr string, dispatcher *rpc.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher: dispatcher,
		log:        logger,
	}

	r := chi.NewRouter()
	r.Post("/rpc/{pattern}", s.handleCall)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the bridge's HTTP handler, for mounting or for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("bridge listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// handleCall routes one call to the dispatcher.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	pattern := chi.URLParam(r, "pattern")
	callID := uuid.NewString()
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, pattern, "cannot read payload")
		return
	}

	response, err := s.dispatcher.Handle(r.Context(), pattern, payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rpc.ErrNoHandler) {
			status = http.StatusNotFound
		}
		s.log.Warn("call failed",
			zap.String("call_id", callID),
			zap.String("pattern", pattern),
			zap.Int("status", status),
			zap.Error(err))
		s.writeError(w, status, pattern, err.Error())
		return
	}

	s.log.Info("call served",
		zap.String("call_id", callID),
		zap.String("pattern", pattern),
		zap.Duration("elapsed", time.Since(start)))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Call-Id", callID)
	if len(response) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(response)
}

func (s *Server) writeError(w http.ResponseWriter, status int, pattern, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message, Pattern: pattern})
}
