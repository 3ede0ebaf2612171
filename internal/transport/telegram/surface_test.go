package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"todox/internal/transport"
	logx "todox/pkg/logx"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    []string
	payloads map[string]map[string]any
	flood    bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	f.mu.Lock()
	f.calls = append(f.calls, method)
	if f.payloads == nil {
		f.payloads = map[string]map[string]any{}
	}
	f.payloads[method] = payload
	flood := f.flood
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"todox","username":"todox_bot"}}`)
	case "sendMessage":
		if flood {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":-100,"type":"supergroup"},"text":"x"}}`)
	case "deleteMessage":
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeAPI) payload(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[method]
}

func newSurface(t *testing.T, api *fakeAPI, chatID int64) *Surface {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	s, err := New(Config{Token: "123:abc", ChatID: chatID, ThreadID: 5, URL: srv.URL, PollTimeout: 2 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestShowAndDismiss(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	s := newSurface(t, api, -100)
	ctx := context.Background()

	if !s.Supported() || s.Permission() != transport.PermissionGranted {
		t.Fatalf("surface should be supported and granted")
	}

	ref, err := s.Show(ctx, transport.Message{Tag: "task-1-1hour", Title: "Task Reminder", Body: "Task due soon (1hour): Ship it"})
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if ref.MessageID != 77 || ref.ChatID != -100 || ref.Surface != Name {
		t.Fatalf("ref = %+v", ref)
	}
	p := api.payload("sendMessage")
	if text, _ := p["text"].(string); !strings.Contains(text, "Ship it") || !strings.HasPrefix(text, "Task Reminder\n") {
		t.Fatalf("text = %q", p["text"])
	}

	if err := s.Dismiss(ctx, ref); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if api.payload("deleteMessage") == nil {
		t.Fatalf("deleteMessage not called")
	}
}

func TestPermissionFollowsChat(t *testing.T) {
	t.Parallel()
	s := newSurface(t, &fakeAPI{}, 0)
	if p, _ := s.RequestPermission(context.Background()); p != transport.PermissionDenied {
		t.Fatalf("permission = %s", p)
	}
	if _, err := s.Show(context.Background(), transport.Message{Body: "x"}); err == nil {
		t.Fatalf("Show without chat should fail")
	}
}

func TestShowFloodIsRetryAfter(t *testing.T) {
	t.Parallel()
	s := newSurface(t, &fakeAPI{flood: true}, -100)
	_, err := s.Show(context.Background(), transport.Message{Body: "x"})
	var ra *transport.RetryAfterError
	if !errors.As(err, &ra) || ra.After != 7*time.Second {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}
