package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "todox/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAMLAndJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	yml := writeFile(t, dir, "config.yaml", `
logging:
  level: debug
  console: true
reminders:
  timezone: Europe/Berlin
  tasks_file: ./tasks.yaml
  prune_restored: false
notifier:
  enabled: true
  surface: console
  dedup_window: 30s
storage:
  driver: sqlite
  path: ./data/todox.db
`)
	cfg, err := NewConfigManager(yml).read()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Reminders.Timezone != "Europe/Berlin" || cfg.Reminders.TasksFile != "./tasks.yaml" {
		t.Fatalf("reminders = %+v", cfg.Reminders)
	}
	if cfg.Reminders.PruneRestoredEnabled() {
		t.Fatalf("prune_restored should be false")
	}
	if cfg.Notifier == nil || cfg.Notifier.DedupWindow != "30s" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}

	js := writeFile(t, dir, "config.json", `{"logging":{"level":"info","console":false,"file":{"enabled":false,"path":""}},"reminders":{"tasks_file":"t.json"}}`)
	cfg, err = NewConfigManager(js).read()
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if !cfg.Reminders.PruneRestoredEnabled() {
		t.Fatalf("prune_restored should default to true")
	}
	if cfg.Notifier != nil {
		t.Fatalf("notifier should be nil when omitted")
	}
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cases := map[string]string{
		"unknown.json":  `{"logging":{"level":"info"},"bogus":1}`,
		"unknown.yaml":  "reminders:\n  tasks_file: x\n  nope: true\n",
		"trailing.json": `{"logging":{"level":"info"}} {}`,
	}
	for name, body := range cases {
		p := writeFile(t, dir, name, body)
		if _, err := NewConfigManager(p).read(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCoerceToJSONPassesThroughNonYAML(t *testing.T) {
	t.Parallel()
	in := []byte(`{"a":1}`)
	out, format, err := CoerceToJSON("x.json", in)
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if format != "json" || string(out) != string(in) {
		t.Fatalf("got %q %s", out, format)
	}

	out, format, err = CoerceToJSON("x.YML", []byte("1: one\nb: [1, 2]\n"))
	if err != nil {
		t.Fatalf("coerce yaml: %v", err)
	}
	if format != "yaml" || !strings.Contains(string(out), `"1":"one"`) {
		t.Fatalf("got %s %s", out, format)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"250ms", 250 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("%q: got %v want %v", tt.raw, got, tt.want)
		}
	}

	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)

	a := &Config{Logging: LoggingConfig{Level: "info"}}
	b := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(a)
	m.publish(b)

	got := <-ch
	if got != b {
		t.Fatalf("expected newest config, got level %q", got.Logging.Level)
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	// publishing after unsubscribe must not panic
	m.publish(a)
}

func TestReloadValidatesAndSkipsUnchanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging":{"level":"info"}}`)

	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(4)

	ctx := context.Background()
	if m.Reload(ctx) {
		t.Fatalf("unchanged content should not publish")
	}

	writeFile(t, dir, "config.json", `{"logging":{"level":"warn"}}`)
	m.SetValidator(func(context.Context, *Config) error { return os.ErrInvalid })
	if m.Reload(ctx) {
		t.Fatalf("rejected config should not publish")
	}
	if m.Get().Logging.Level != "info" {
		t.Fatalf("rejected config must not be committed")
	}

	m.SetValidator(nil)
	if !m.Reload(ctx) {
		t.Fatalf("changed config should publish")
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatalf("expected a published config")
	}
}

func TestWatchFileReportsWrites(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tasks.json", `[]`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WatchFile(ctx, p, logx.Nop(), func() { fired <- struct{}{} })
	}()

	// Writes are spaced wider than the debounce so each one can settle; the
	// first few may land before the watcher is registered.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(2 * watchDebounce)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-fired:
			cancel()
			<-done
			return
		case <-tick.C:
			writeFile(t, dir, "tasks.json", `[{"id":"`+time.Now().Format(time.RFC3339Nano)+`"}]`)
		case <-deadline:
			t.Fatalf("no change reported after %d writes", i)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-b"},
		Digest:   DigestConfig{Enabled: true},
		Notifier: &NotifierConfig{Enabled: true},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"telegram": true, "digest": true, "notifier": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
	var buf bytes.Buffer
	logx.NewJSON(&buf, "debug").Info("config changed", attrs...)
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("token leaked into attrs: %s", buf.String())
	}

	changed, _ = SummarizeConfigChange(newCfg, newCfg)
	if len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}
