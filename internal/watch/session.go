package watch

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mm-zacharydavison/rpckit/internal/compiler"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
)

// Options configure a watch session.
type Options struct {
	// Dirs are the expanded package-root directories to watch.
	Dirs []string
	// Debounce is the quiet period before a change burst regenerates.
	Debounce time.Duration
	// ReloadAddr, when non-empty, serves regeneration notifications over
	// websocket at this address under /reload.
	ReloadAddr string
	// Logger backs the reload server. May be nil.
	Logger *zap.Logger
	// OnResult, when set, observes every regeneration outcome; the CLI uses
	// it to print summaries.
	OnResult func(result *compiler.Result, err error)
}

// Session regenerates artifacts whenever watched source changes. The
// compiler instance is shared across regenerations so its parse cache keeps
// unchanged files from re-parsing.
type Session struct {
	compiler *compiler.Compiler
	opts     Options
	reload   *ReloadServer
}

// NewSession creates a watch session around a compiler.
func NewSession(c *compiler.Compiler, opts Options) *Session {
	return &Session{compiler: c, opts: opts}
}

// Run generates once, then watches until ctx is cancelled. The initial
// generation's error is reported through OnResult, not returned: a broken
// tree at startup is exactly what watch mode is for.
func (s *Session) Run(ctx context.Context) error {
	var reloadSrv *http.Server
	if s.opts.ReloadAddr != "" {
		s.reload = NewReloadServer(s.opts.Logger)
		defer s.reload.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/reload", s.reload.HandleWebSocket)
		reloadSrv = &http.Server{Addr: s.opts.ReloadAddr, Handler: mux}
		go func() {
			if err := reloadSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[Watch] Reload server error: %v", err)
			}
		}()
		defer reloadSrv.Close()
	}

	s.regenerate(nil)

	fw, err := NewFileWatcher(s.opts.Dirs, nil, s.opts.Debounce, func(files []string) error {
		s.regenerate(files)
		return nil
	})
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	return fw.Stop()
}

// regenerate runs one compile and broadcasts the outcome.
func (s *Session) regenerate(changed []string) {
	for _, path := range changed {
		s.compiler.Invalidate(path)
	}
	if s.reload != nil {
		s.reload.NotifyBuilding(changed)
	}

	start := time.Now()
	result, err := s.compiler.Generate()

	if s.reload != nil {
		if err != nil {
			s.reload.NotifyError(errorInfo(err))
		} else {
			s.reload.NotifyGenerated(result.Emission.Files, time.Since(start))
		}
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(result, err)
	}
}

// errorInfo shapes a regeneration failure for reload clients.
func errorInfo(err error) *ErrorInfo {
	if d, ok := err.(rpcerrors.Diagnostic); ok {
		return &ErrorInfo{
			Message:  d.Message,
			File:     d.Location.File,
			Line:     d.Location.Line,
			Column:   d.Location.Column,
			Code:     d.Code,
			Phase:    d.Phase,
			Severity: d.Severity.String(),
		}
	}
	return &ErrorInfo{Message: err.Error()}
}
