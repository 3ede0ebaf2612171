package diag

import (
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"todox/internal/reminder"
)

// Reminders is the read side of the reminder scheduler.
type Reminders interface {
	ScheduledReminderCount(taskID string) int
	Total() int
	Snapshot() []reminder.EntryInfo
}

// Sources are the components the handler reports on. Nil fields disable the
// matching endpoint.
type Sources struct {
	Gatherer  prometheus.Gatherer
	Reminders Reminders
	// Status, when set, is rendered as JSON on /status.
	Status func() any
}

type countResponse struct {
	TaskID string `json:"task_id"`
	Count  int    `json:"count"`
}

type listResponse struct {
	Total   int                  `json:"total"`
	Entries []reminder.EntryInfo `json:"entries"`
}

// Handler builds the diagnostics mux for cfg.
func Handler(cfg Config, src Sources) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	if src.Gatherer != nil {
		mh := promhttp.HandlerFor(src.Gatherer, promhttp.HandlerOpts{})
		mux.HandleFunc("/metrics", wrap(mh.ServeHTTP))
	}

	if src.Reminders != nil {
		mux.HandleFunc("/reminders", wrap(func(w http.ResponseWriter, r *http.Request) {
			if id := strings.TrimSpace(r.URL.Query().Get("task")); id != "" {
				writeJSON(w, countResponse{TaskID: id, Count: src.Reminders.ScheduledReminderCount(id)})
				return
			}
			entries := src.Reminders.Snapshot()
			writeJSON(w, listResponse{Total: len(entries), Entries: entries})
		}))
	}

	if src.Status != nil {
		mux.HandleFunc("/status", wrap(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, src.Status())
		}))
	}

	if cfg.Pprof {
		prefix := normalizePrefix(cfg.PprofPrefix)
		base := strings.TrimSuffix(prefix, "/")
		mux.HandleFunc(prefix, wrap(pprofIndexAt(prefix)))
		mux.HandleFunc(base+"/cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc(base+"/profile", wrap(hpprof.Profile))
		mux.HandleFunc(base+"/symbol", wrap(hpprof.Symbol))
		mux.HandleFunc(base+"/trace", wrap(hpprof.Trace))
		mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
		})
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprofIndexAt serves pprof.Index under a custom prefix; Index expects paths
// rooted at /debug/pprof/.
func pprofIndexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, canon)
		hpprof.Index(w, r2)
	}
}
