package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-content-cache/internal/cache"
	"go-content-cache/internal/config"
	"go-content-cache/internal/convert"
	"go-content-cache/internal/data"
	"go-content-cache/internal/handler"
	"go-content-cache/internal/logger"
	"go-content-cache/internal/pubcache"
	"go-content-cache/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig()
	if err != nil {
		// Use fmt.Printf here because the logger is not yet initialized.
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Initialization ---
	log := logger.New(cfg.Log, nil)

	// --- Database Initialization and Migration ---
	log.Info("Applying database migrations...")
	if err := data.ApplyMigrations(cfg.DB.DSN, cfg.DB.MigrationsPath); err != nil {
		log.Fatal(err, "Failed to apply migrations")
	}

	db, err := data.NewDB(cfg.DB.DSN)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	log.Info("Database connection successful.")

	// --- Content Types ---
	metrics := service.NewMetrics(prometheus.DefaultRegisterer)
	converters := convert.NewRegistry()
	typeCache := service.NewContentTypeCache(data.NewSQLContentTypeRepository(db, converters), metrics)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()
	if err := typeCache.Preload(startCtx); err != nil {
		log.Fatal(err, "Failed to load content types")
	}

	// --- Local Kit DB ---
	opts := service.Options{
		RehydrateFromLocal: cfg.Cache.RehydrateFromLocal,
		Metrics:            metrics,
		Logger:             log,
	}
	if cfg.Cache.LocalDB.Enabled {
		local, err := cache.New(cfg.Cache.LocalDB.FilePath)
		if err != nil {
			log.Fatal(err, "Failed to open local kit db")
		}
		defer local.Close()
		opts.Local = local
	}

	// --- Content Store ---
	store := pubcache.NewContentStore(typeCache, log)
	cacheService := service.NewContentCacheService(store, data.NewSQLKitRepository(db), typeCache, opts)

	log.Info("Loading published content...")
	res, err := cacheService.Rehydrate(startCtx)
	if err != nil {
		log.Fatal(err, "Failed to load published content")
	}
	log.With(map[string]interface{}{
		"applied":    res.Applied,
		"orphans":    len(res.Orphans),
		"failed":     len(res.Failed),
		"generation": store.Generation(),
	}).Info("Published content loaded.")
	cancelStart()

	// --- Router Setup ---
	routerOpts := handler.RouterOptions{
		MetricsPath: cfg.Metrics.Path,
		NotifyPath:  cfg.Server.NotifyPath,
		NotifyToken: cfg.Server.NotifyToken,
	}
	if cfg.Metrics.Enabled {
		routerOpts.Metrics = promhttp.Handler()
	}
	if cfg.Server.NotifyToken == "" {
		log.Warn("No notify token set; change notifications are accepted from anyone who can reach the server.")
	}
	contentHandler := handler.NewContentHandler(store, cacheService, log)
	seoHandler := handler.NewSeoHandler(store, cfg.Server.BaseURL)
	router := handler.NewRouter(contentHandler, seoHandler, cacheService, routerOpts, log)

	// --- Server Initialization and Graceful Shutdown ---
	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		if cfg.Server.TLS.Enabled {
			log.Info(fmt.Sprintf("Starting HTTPS server on %s", server.Addr))
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTPS server")
			}
		} else {
			log.Info(fmt.Sprintf("Starting HTTP server on %s", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTP server")
			}
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Warn("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal(err, "Server forced to shutdown")
	}
	log.Info("Server exiting")
}
