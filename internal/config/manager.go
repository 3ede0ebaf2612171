package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sync"
	"time"

	logx "todox/pkg/logx"
)

const validateTimeout = 5 * time.Second

// ConfigManager holds the current config and republishes it when the file
// changes. Subscribers always receive the newest config; an undrained older
// one is replaced.
type ConfigManager struct {
	path      string
	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	mu   sync.RWMutex
	cfg  *Config
	sum  uint64
	subs map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, subs: map[chan *Config]struct{}{}}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the check a reloaded config must pass before it
// is committed.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Decode strictly decodes JSON or YAML config bytes: unknown fields and
// trailing data are errors.
func Decode(path string, data []byte) (*Config, error) {
	jb, _, err := CoerceToJSON(path, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return &cfg, nil
	case err == nil:
		return nil, errors.New("invalid config: trailing data")
	default:
		return nil, err
	}
}

func (m *ConfigManager) read() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Load reads and commits the file without validation or publishing.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.read()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) commit(cfg *Config, sum uint64) {
	m.mu.Lock()
	m.cfg, m.sum = cfg, sum
	m.mu.Unlock()
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish runs under the lock that Unsubscribe takes, so it never sends on
// a closed channel.
func (m *ConfigManager) publish(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		// full: drop the stale config so the newest one fits
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Reload re-reads the file and publishes it when the content changed and
// the validator accepts it. It reports whether a config was published.
func (m *ConfigManager) Reload(ctx context.Context) bool {
	cfg, err := m.read()
	if err != nil {
		m.log.Warn("config parse failed; keeping current", logx.String("path", m.path), logx.Err(err))
		return false
	}
	sum := fingerprint(cfg)
	m.mu.RLock()
	same := sum == m.sum
	m.mu.RUnlock()
	if same {
		m.log.Debug("config content unchanged", logx.String("path", m.path))
		return false
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping current", logx.String("path", m.path), logx.Err(err))
			return false
		}
	}
	m.commit(cfg, sum)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("sum", fmt.Sprintf("%016x", sum)))
	return true
}

// Watch reloads on every file change until ctx is done.
func (m *ConfigManager) Watch(ctx context.Context) error {
	return WatchFile(ctx, m.path, m.log, func() { m.Reload(ctx) })
}

// fingerprint hashes the decoded config, so formatting-only edits do not
// count as changes.
func fingerprint(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
