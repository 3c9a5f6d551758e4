package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"metadb-gateway/internal/filesystem"
	"metadb-gateway/internal/handlers"
	"metadb-gateway/internal/logging"
	"metadb-gateway/internal/memory"
	"metadb-gateway/internal/metrics"
	"metadb-gateway/internal/middleware"
	"metadb-gateway/internal/router"
	"metadb-gateway/internal/startup"
	"metadb-gateway/internal/static"
	"metadb-gateway/internal/upstream"
)

const (
	shutdownTimeout = 30 * time.Second
	probeInterval   = 30 * time.Second
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	errorLog, err := setupRuntime(config)
	if err != nil {
		logging.Fatal("Error log: %v", err)
	}
	defer errorLog.Close()

	accessLog, accessCloser, err := startup.OpenAccessLog(config.AccessLog)
	if err != nil {
		logging.Fatal("Access log: %v", err)
	}
	defer accessCloser.Close()

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	forwarder, err := upstream.New(config.Upstream)
	if err != nil {
		logging.Fatal("Upstream: %v", err)
	}

	roots, routes, err := buildRoutes(config, forwarder)
	if err != nil {
		logging.Fatal("Static roots: %v", err)
	}

	rtr, err := router.New(router.Config{
		Routes:            routes,
		StaticCompression: config.StaticCompression,
		ProxyCompression:  config.ProxyCompression,
	})
	if err != nil {
		logging.Fatal("Router: %v", err)
	}

	checkers := make([]handlers.StaticChecker, 0, len(roots))
	for _, root := range roots {
		checkers = append(checkers, root)
	}
	h := handlers.New(forwarder, checkers...)

	routers := map[string]*mux.Router{"main": rtr.Mux()}

	srv := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           buildHandler(config, rtr, accessLog),
		ReadHeaderTimeout: 15 * time.Second,
		// Upstream responses may stream for as long as the client reads
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     logging.NewStdLogger(logging.LevelWarn),
	}

	var adminSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		admin := setupAdminRouter(h)
		routers["admin"] = admin

		adminSrv = &http.Server{
			Addr:              config.AdminAddr,
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          logging.NewStdLogger(logging.LevelWarn),
		}

		collector = metrics.NewCollector(h, probeInterval)
		collector.Start()
	}

	startup.LogHTTPRoutes(routers, config.AccessLog)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return serve(srv) })
	if adminSrv != nil {
		g.Go(func() error { return serve(adminSrv) })
	}
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			startup.LogShutdownInitiated(sig.String())
		case <-ctx.Done():
			startup.LogShutdownInitiated("server error")
		}
		signal.Stop(sigChan)
		return shutdown(srv, adminSrv, collector, forwarder)
	})

	startup.LogServerStarted(startup.ServerConfig{
		ListenAddr:      config.ListenAddr,
		AdminAddr:       config.AdminAddr,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server error: %v", err)
		os.Exit(1)
	}
	startup.LogShutdownComplete()
}

// setupRuntime redirects the error log before applying the memory limit, so
// MEMORY_LIMIT warnings land in ERROR_LOG.
func setupRuntime(config *startup.Config) (io.Closer, error) {
	errorLog, err := logging.OpenErrorLog(config.ErrorLog)
	if err != nil {
		return nil, err
	}
	memory.ConfigureFromEnv()
	return errorLog, nil
}

// buildRoutes assembles the routing table: the static prefix, the optional
// site-root lookup, then the upstream catch-all.
func buildRoutes(config *startup.Config, forwarder http.Handler) ([]*static.Root, []router.Route, error) {
	var roots []*static.Root
	var routes []router.Route

	prefixRoot, err := static.New(config.StaticRoot, static.Options{
		Prefix: config.StaticPrefix,
		MaxAge: config.StaticMaxAge,
	})
	if err != nil {
		return nil, nil, err
	}
	roots = append(roots, prefixRoot)
	routes = append(routes, router.Route{PathPrefix: prefixRoot.Prefix(), Static: prefixRoot})

	if config.StaticTryRoot {
		siteRoot, err := static.New(config.StaticRoot, static.Options{
			Prefix: "/",
			MaxAge: config.StaticMaxAge,
		})
		if err != nil {
			return nil, nil, err
		}
		roots = append(roots, siteRoot)
		routes = append(routes, router.Route{PathPrefix: "/", Static: siteRoot})
	}

	routes = append(routes, router.Route{PathPrefix: "/", Upstream: forwarder})
	return roots, routes, nil
}

// buildHandler wraps the router with metrics and access logging. Both read
// the route kind the router records in the shared request info.
func buildHandler(config *startup.Config, rtr http.Handler, accessLog io.Writer) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig(accessLog)
	loggingConfig.ServerName = config.ServerName
	loggingConfig.DefaultRoute = metrics.RouteRejected

	// Every path on this listener belongs to the site, so nothing is skipped
	metricsConfig := middleware.DefaultMetricsConfig()
	metricsConfig.SkipPaths = nil

	handler := middleware.Logger(loggingConfig)(rtr)
	return middleware.Metrics(metricsConfig)(handler)
}

func setupAdminRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	return r
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(srv, adminSrv *http.Server, collector *metrics.Collector, forwarder *upstream.Forwarder) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	err := srv.Shutdown(ctx)
	if err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if adminSrv != nil {
		startup.LogShutdownStep("Shutting down admin server")
		if err := adminSrv.Shutdown(ctx); err != nil {
			logging.Warn("Admin server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Admin server stopped")
		}
	}

	if collector != nil {
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	forwarder.Close()
	startup.LogShutdownStepComplete("Upstream connections released")

	return err
}
