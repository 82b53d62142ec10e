// Package app runs the web server and the reference data schedule as
// background jobs sharing one lifetime.
package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown
const DefaultShutdownTimeout = 10 * time.Second

type backgroundJob func(context.Context) error

// Pinger checks the database
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds everything the application serves
type Config struct {
	Listen          string
	Pages           http.Handler
	Gatherer        prometheus.Gatherer
	DB              Pinger
	Refresher       refdata.Refresher // nil disables the refresh schedule
	Schedule        refdata.ScheduleOptions
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// App owns the background jobs
type App struct {
	ctx    context.Context
	cfg    Config
	logger *zap.Logger
	router chi.Router
	jobs   []backgroundJob

	mu   sync.Mutex
	addr net.Addr
	up   chan struct{}
}

// New creates the application and registers its jobs. Nothing runs until Run.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Pages == nil {
		return nil, errors.New("no page handler configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	application := &App{
		ctx:    ctx,
		cfg:    cfg,
		logger: cfg.Logger,
		up:     make(chan struct{}),
	}
	application.registerRoutes()
	application.registerHTTPServer()
	if cfg.Refresher != nil {
		application.registerRefreshSchedule()
	}
	return application, nil
}

// Run starts every job and blocks until ctx is done or a job fails. A failing
// job stops the others; all job errors are combined.
func (app *App) Run() error {
	app.Logger().Info("started application", zap.Int("jobs", len(app.jobs)))

	ctx, cancel := context.WithCancel(app.ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChannel := make(chan error, len(app.jobs))

	for _, job := range app.jobs {
		wg.Add(1)
		go func(job backgroundJob) {
			defer wg.Done()
			if err := job(ctx); err != nil {
				errChannel <- err
				cancel()
			}
		}(job)
	}

	wg.Wait()
	close(errChannel)

	var errs error
	for err := range errChannel {
		errs = multierr.Append(errs, err)
	}

	app.Logger().Info("stopped application")
	return errs
}

// AddBackgroundJob registers a job; it must return once its context is done
func (app *App) AddBackgroundJob(job backgroundJob) {
	app.jobs = append(app.jobs, job)
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// Handler returns the full HTTP handler: pages, /metrics and /health
func (app *App) Handler() http.Handler {
	return app.router
}

// Addr blocks until the HTTP listener is open and returns its address
func (app *App) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-app.up:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.addr, nil
}

func (app *App) registerRoutes() {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(app.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", app.health)
	r.Mount("/", app.cfg.Pages)
	app.router = r
}

func (app *App) health(w http.ResponseWriter, r *http.Request) {
	if app.cfg.DB != nil {
		if err := app.cfg.DB.Ping(r.Context()); err != nil {
			app.Logger().Warn("health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

func (app *App) registerHTTPServer() {
	httpServer := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.AddBackgroundJob(func(ctx context.Context) error {
		listener, listenErr := net.Listen("tcp", app.cfg.Listen)
		if listenErr != nil {
			return errors.Wrap(listenErr, "could not open HTTP port to serve")
		}

		app.mu.Lock()
		app.addr = listener.Addr()
		app.mu.Unlock()
		close(app.up)

		app.Logger().Info("starting HTTP server", zap.Stringer("addr", listener.Addr()))
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "HTTP server error")
		}
		return nil
	})
	app.AddBackgroundJob(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
		defer cancel()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "HTTP server shutdown")
	})
}

func (app *App) registerRefreshSchedule() {
	app.AddBackgroundJob(func(ctx context.Context) error {
		return errors.Wrap(refdata.Schedule(ctx, app.cfg.Refresher, app.cfg.Schedule), "refresh schedule")
	})
}
