// Package app wires the skywidget server runtime: config, logging, metrics,
// session persistence, and the widget HTTP and websocket surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"skywidget/cmd/internal/auth/session"
	"skywidget/cmd/internal/bsky"
	"skywidget/cmd/internal/widget"
	"skywidget/cmd/internal/xrpc"
	"skywidget/cmd/security/seal"

	"github.com/jackc/pgx/v5/pgxpool"
)

// storeLoadTimeout bounds the startup read of the persisted session record.
const storeLoadTimeout = 5 * time.Second

// readinessCheck reports whether one dependency is reachable.
type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

// App is the skywidget server runtime: it owns HTTP server wiring and the
// resources behind the session store.
type App struct {
	cfg Config
	log Logger

	metrics *Metrics
	mgr     *session.Manager
	widget  *widget.Handler
	stream  *widget.Stream

	dbPool  *pgxpool.Pool
	checks  []readinessCheck
	closers []func()
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}
	policy, err := session.ProbePolicyByName(sessCfg.ProbePolicy)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	ctx := context.Background()
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, readinessCheck{name: "db", ping: func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		}})
		log.Info("db.enabled.postgres")
	}

	blobs, err := a.newBlobStore(ctx, sessCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var sealer *seal.Sealer
	if sessCfg.SealSecret != "" {
		sealer, err = seal.New([]byte(sessCfg.SealSecret))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("session seal: %w", err)
		}
	}
	store := session.NewRecordStore(blobs, sealer, log)

	api := xrpc.New(session.BaseURLFromEnv(), cfg.UpstreamTimeout)
	transport := session.NewTransport(api, store, a.metrics, log)
	prober := session.NewProber(api, policy, a.metrics, log)

	loadCtx, cancel := context.WithTimeout(ctx, storeLoadTimeout)
	initial, ok := store.Load(loadCtx)
	cancel()

	a.mgr = session.NewManager(
		session.NewCache(initial, ok),
		session.EnvCredentials{},
		transport,
		prober,
		session.WithObserver(a.metrics),
		session.WithLogger(log),
		session.WithFlightTimeout(sessCfg.AuthTimeout),
	)

	feed := widget.NewFeed(a.mgr, bsky.NewClient(api), a.metrics, log)
	a.widget = widget.NewHandler(feed, log)
	a.stream = widget.NewStream(feed, widget.LoadStreamConfigFromEnv(), log)

	log.Info("app.ready",
		"upstream", api.BaseURL(),
		"session_store", blobs.Name(),
		"sealed", sealer != nil,
		"probe_policy", sessCfg.ProbePolicy,
		"session_restored", ok,
	)
	return a, nil
}

// newBlobStore selects the session persistence backend.
func (a *App) newBlobStore(ctx context.Context, sessCfg session.Config) (session.BlobStore, error) {
	switch sessCfg.Store {
	case session.StoreRedis:
		rs, err := session.NewRedisStoreFromURL(sessCfg.RedisURL, sessCfg.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("session redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rs.Close() })
		a.checks = append(a.checks, readinessCheck{name: "redis", ping: rs.Ping})
		return rs, nil

	case session.StorePostgres:
		if a.dbPool == nil {
			return nil, fmt.Errorf("session postgres: SKYWIDGET_DATABASE_URL is not set: %w", session.ErrConfig)
		}
		ps := session.NewPostgresStore(a.dbPool)
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("session postgres: %w", err)
		}
		return ps, nil

	default:
		return session.NewFileStore(sessCfg.FilePath), nil
	}
}

// Handler returns the routed mux behind the request middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithSecurityHeaders(WithRequestLogging(mux, a.log))
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"widget_url", base+"/?tags=bluesky",
		"stream_url", wsBaseURL(base)+"/stream?tags=bluesky",
		"db_enabled", a.dbPool != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.close()
		return err
	}

	a.close()
	a.log.Info("server.stopped")
	return nil
}

// close releases store resources in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

var _ widget.Metrics = (*Metrics)(nil)
