package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const defaultLogPath = "./todox.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process sinks. Loggers it hands out follow Apply.
type Service struct {
	mu   sync.Mutex
	r    *root
	file *os.File
}

// New builds the service from cfg and returns it with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{r: newRoot(zerolog.Nop())}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{r: s.r} }

// Apply rebuilds the sinks. A file that cannot be opened is reported on
// stderr and skipped; with no sink left, console output is used.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	var file *os.File
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := build(zerolog.MultiLevelWriter(sinks...), cfg.Level)
	s.r.zl.Store(&zl)

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
}

// Close releases the log file, if any.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
