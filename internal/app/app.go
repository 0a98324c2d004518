package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rimio/sota-notifier/internal/config"
	"github.com/rimio/sota-notifier/internal/events"
	"github.com/rimio/sota-notifier/internal/httpapi"
	"github.com/rimio/sota-notifier/internal/metrics"
	"github.com/rimio/sota-notifier/internal/monitor"
	"github.com/rimio/sota-notifier/internal/notify"
	"github.com/rimio/sota-notifier/internal/queue"
	"github.com/rimio/sota-notifier/internal/sota"
	"github.com/rimio/sota-notifier/internal/store"
	"github.com/rimio/sota-notifier/internal/summits"
	"github.com/rimio/sota-notifier/internal/watch"
)

const dispatchTimeout = 15 * time.Second

// App wires the monitor to its feed, sinks and ops surface.
type App struct {
	cfg      config.Config
	store    *store.Store
	metrics  *metrics.Metrics
	bus      *events.Bus
	queue    *queue.Queue
	resolver *summits.Resolver
	monitor  *monitor.Monitor
	watcher  *watch.Watcher
	mux      *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	bus := events.NewBus()
	q := queue.New(cfg.DispatchQueueSize, cfg.DispatchWorkers, dispatchTimeout)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := sota.NewClient(cfg.APIURL, httpClient)
	resolver := summits.NewResolver(client)

	var sinks []notify.Sink
	if cfg.DesktopEnabled {
		sinks = append(sinks, notify.NewDesktop(cfg.NotifyCommand, cfg.NotifyAppName, q))
	}
	if n := notify.NewNtfy(cfg.NtfyURL, cfg.NtfyTopic, cfg.NtfyTags, httpClient); n != nil {
		sinks = append(sinks, n)
	}
	sinks = append(sinks, notify.NewJournal(st), notify.NewBusSink(bus))

	dispatcher := notify.NewDispatcher(nil, sinks...)
	mon, err := monitor.New(monitor.Options{
		Feed:        client,
		Resolver:    resolver,
		Sink:        dispatcher,
		Bus:         bus,
		Metrics:     m,
		Observer:    cfg.Location,
		ThresholdKm: cfg.DistanceKm,
		Interval:    cfg.Interval,
		Modes:       cfg.Modes,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{cfg: cfg, store: st, metrics: m, bus: bus, queue: q, resolver: resolver, monitor: mon}
	if cfg.WatchConfig {
		a.watcher = watch.New(cfg.ConfigPath, mon, cfg.Pinned)
	}
	a.mux = http.NewServeMux()
	httpapi.NewRouter(httpapi.Deps{Monitor: mon, Journal: st, Metrics: m, Queue: q, Bus: bus}).Register(a.mux)
	log.Printf("app: sinks=%d desktop=%t ntfy=%t journal=%s", dispatcher.Sinks(), cfg.DesktopEnabled, cfg.NtfyTopic != "", cfg.JournalPath)
	return a, nil
}

// Run starts the dispatch workers, the optional watcher and ops server, and blocks in
// the poll loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	a.queue.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.queue.Stop(stopCtx)
	}()

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			log.Printf("app: config watcher disabled: %v", err)
		}
	}
	if a.cfg.OpsAddr != "" {
		a.serveOps(ctx)
	}
	if a.cfg.StatsInterval > 0 {
		go a.reportStats(ctx, a.cfg.StatsInterval)
	}
	return a.monitor.Run(ctx)
}

func (a *App) serveOps(ctx context.Context) {
	srv := &http.Server{Addr: a.cfg.OpsAddr, Handler: a.mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Printf("http listening on %s", a.cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("app: ops server: %v", err)
		}
	}()
}

func (a *App) reportStats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Print(StatsLine(a.metrics.Snapshot()))
		}
	}
}

// StatsLine renders the periodic summary log line.
func StatsLine(s metrics.Snapshot) string {
	return fmt.Sprintf("stats: polls=%s failed=%s new=%s notified=%s skipped=%s cache=%s mark=%d",
		humanize.Comma(s.PollsOK), humanize.Comma(s.PollsFailed), humanize.Comma(s.NewSpots),
		humanize.Comma(s.Notified), humanize.Comma(s.Skipped), humanize.Comma(s.CachedSummits), s.HighWaterMark)
}

func (a *App) Monitor() *monitor.Monitor { return a.monitor }
func (a *App) Store() *store.Store       { return a.store }
func (a *App) Mux() *http.ServeMux       { return a.mux }
