package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rimio/sota-notifier/internal/events"
	"github.com/rimio/sota-notifier/internal/metrics"
	"github.com/rimio/sota-notifier/internal/monitor"
	"github.com/rimio/sota-notifier/internal/queue"
	"github.com/rimio/sota-notifier/internal/store"
)

// Journal is the read side of the notification store.
type Journal interface {
	ListNotifications(ctx context.Context, limit int) ([]store.Entry, error)
	Count(ctx context.Context) (int64, error)
	Health(ctx context.Context) error
}

// StatusSource reports the monitor's state.
type StatusSource interface {
	Status() monitor.Status
}

// Deps are the components the router reads from. Queue and Bus may be nil.
type Deps struct {
	Monitor StatusSource
	Journal Journal
	Metrics *metrics.Metrics
	Queue   *queue.Queue
	Bus     *events.Bus
}

// Router builds HTTP handlers for /api, /ops and /metrics.
type Router struct {
	deps    Deps
	started time.Time
}

func NewRouter(deps Deps) *Router {
	return &Router{deps: deps, started: time.Now()}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/events", r.events)
	mux.HandleFunc("/api/notifications", r.notifications)
	if r.deps.Metrics != nil {
		mux.Handle("/metrics", r.deps.Metrics.Handler())
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Journal.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	st := r.deps.Monitor.Status()
	payload := map[string]any{
		"monitor": st,
		"uptime":  strings.TrimSpace(humanize.RelTime(r.started, time.Now(), "", "")),
	}
	if !st.LastPoll.IsZero() {
		payload["last_poll_age"] = humanize.Time(st.LastPoll)
	}
	if r.deps.Metrics != nil {
		payload["metrics"] = r.deps.Metrics.Snapshot()
	}
	if r.deps.Queue != nil {
		payload["dispatch"] = r.deps.Queue.Stats()
	}
	if r.deps.Bus != nil {
		payload["event_subscribers"] = r.deps.Bus.Subscribers()
	}
	if n, err := r.deps.Journal.Count(req.Context()); err == nil {
		payload["journal_entries"] = n
	} else {
		log.Printf("httpapi: journal count: %v", err)
	}
	respondJSON(w, payload)
}

func (r *Router) notifications(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}
	list, err := r.deps.Journal.ListNotifications(req.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.Entry{}
	}
	respondJSON(w, list)
}

// events streams bus events as server-sent events until the client goes away.
func (r *Router) events(w http.ResponseWriter, req *http.Request) {
	if r.deps.Bus == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, cancel := r.deps.Bus.Subscribe(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			buf, err := json.Marshal(ev)
			if err != nil {
				log.Printf("httpapi: encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, buf)
			flusher.Flush()
		}
	}
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
