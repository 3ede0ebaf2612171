// Package diag serves health, metrics, reminder counts and optional pprof
// over HTTP.
//
// Binding to a non-loopback address requires a token or AllowInsecure.
package diag

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "todox/internal/runtime/supervisor"
	logx "todox/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9310"

// ErrInsecureBind is returned when a public address has no token.
var ErrInsecureBind = errors.New("diag refused to start: non-loopback addr requires token or allow_insecure")

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	PprofPrefix   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	src Sources

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, src Sources, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr is the bound listener address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg, starting, stopping or restarting the server as needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. The listener runs under a restart loop so transient
// failures heal; an insecure bind is refused and not retried.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "diag"))),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	srv := s.srv
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	_ = sup.Wait(ctx)

	s.mu.Lock()
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	s.log.Info("diag stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	src := s.src
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if err := CheckBind(cur); err != nil {
		s.log.Error(err.Error(), logx.String("addr", addr))
		// Not retryable: returning Canceled ends the restart loop.
		return context.Canceled
	}
	if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("diag running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("diag listen failed", logx.String("addr", addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:           Handler(cur, src),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cur.ReadTimeout,
		WriteTimeout:      cur.WriteTimeout,
		IdleTimeout:       cur.IdleTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("diag started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", cur.Pprof),
		logx.Bool("token_set", cur.Token != ""),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("diag server exited unexpectedly")
	}
	return err
}

// CheckBind reports ErrInsecureBind for configs serveOnce would refuse.
func CheckBind(cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(addr) {
		return ErrInsecureBind
	}
	return nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
