package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/muse-core/internal/async"
	"github.com/loqalabs/muse-core/internal/bus"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/export"
	"github.com/loqalabs/muse-core/internal/natsserver"
	"github.com/loqalabs/muse-core/internal/repo"
	"github.com/loqalabs/muse-core/internal/scriptstore"
	"github.com/loqalabs/muse-core/internal/service"
	"github.com/loqalabs/muse-core/internal/tts"
)

type Runtime struct {
	cfg          config.Config
	logger       *slog.Logger
	httpServer   *http.Server
	tracerClose  func(context.Context) error
	embeddedNATS *natsserver.EmbeddedServer
	busClient    *bus.Client
	store        scriptstore.Store
	service      *service.Service
	ready        atomic.Bool
	started      chan struct{}
	addr         atomic.Value
	wg           sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		started: make(chan struct{}),
	}
}

// Started is closed once the HTTP listener is bound and all components are up.
func (r *Runtime) Started() <-chan struct{} { return r.started }

// Addr reports the bound HTTP address, or "" before Started fires.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Start wires every component, serves until ctx is cancelled and then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startComponents(ctx); err != nil {
		r.shutdown()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port))
	if err != nil {
		r.shutdown()
		return fmt.Errorf("listen http: %w", err)
	}
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.addr.Store(listener.Addr().String())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	close(r.started)
	r.logger.Info("runtime started", slog.String("addr", r.Addr()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

func (r *Runtime) startComponents(ctx context.Context) error {
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.embeddedNATS = embedded
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	r.busClient, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	r.store, err = scriptstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open script store: %w", err)
	}

	files, err := cachefs.New(r.cfg.Cache.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve cache root: %w", err)
	}

	repository := repo.New(r.store, files,
		repo.WithPool(async.NewPool(r.cfg.Phrases.Workers)),
		repo.WithMaxTextLength(r.cfg.Phrases.MaxTextLength),
	)

	synth, err := tts.FromConfig(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to configure synthesizer: %w", err)
	}
	pipeline := export.NewPipeline(repository, synth, r.cfg.TTS, r.cfg.Export, r.logger)

	r.service = service.New(ctx, r.busClient, repository, pipeline, r.cfg.Bus.QueueGroup, r.logger)
	if err := r.service.Start(); err != nil {
		return fmt.Errorf("failed to start script service: %w", err)
	}
	return nil
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.service != nil {
		r.service.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("script store close error", slog.String("error", err.Error()))
		}
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	r.embeddedNATS.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.service != nil && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
