package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/reportengine/internal/config"
	"github.com/rpattn/reportengine/internal/db"
	"github.com/rpattn/reportengine/internal/export"
	"github.com/rpattn/reportengine/internal/logging"
	"github.com/rpattn/reportengine/internal/middleware"
	"github.com/rpattn/reportengine/internal/query"
	"github.com/rpattn/reportengine/internal/registry"
	"github.com/rpattn/reportengine/internal/render"
	"github.com/rpattn/reportengine/internal/report"
	"github.com/rpattn/reportengine/internal/repository"
)

type storeHandle struct {
	store  repository.RowStore
	pinger repository.Pinger
	close  func()
}

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("error", "json").WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logging.LogError(logger, "main", "openStore", cfg.Database.Driver, nil, err)
		os.Exit(1)
	}
	defer store.close()

	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("invalid report time zone")
	}
	entities, err := registry.Default(loc)
	if err != nil {
		logger.WithError(err).Fatal("invalid report definitions")
	}
	dialect, err := query.ParseDialect(cfg.Database.Driver)
	if err != nil {
		logger.WithError(err).Fatal("unsupported query dialect")
	}

	fetcher := report.NewFetcher(query.NewBuilder(entities, dialect), store.store, logger)
	renderer := render.NewRenderer(render.WithLocation(loc))
	service := export.NewService(entities, fetcher, renderer, pdfOptions(cfg.PDF, logger)...)

	exportHandler := export.NewHTTPHandler(service,
		export.WithRequestTimeout(cfg.Server.RequestTimeout),
		export.WithHandlerLogger(logger),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Report-Renderer", "X-Report-Rows", middleware.RequestIDHeader},
	})

	withPrincipal := middleware.PrincipalMiddleware(cfg.Server.PrincipalHeader, cfg.Server.PermissionsHeader)
	withLogging := middleware.LoggingMiddleware(logger)

	mux := http.NewServeMux()
	mux.Handle("/reports", corsHandler.Handler(withLogging(withPrincipal(exportHandler))))
	mux.Handle("/reports/", corsHandler.Handler(withLogging(withPrincipal(exportHandler))))
	mux.Handle("/healthz", withLogging(healthHandler(store.pinger)))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     cfg.Server.Addr,
			"driver":   cfg.Database.Driver,
			"entities": entities.Keys(),
		}).Info("starting report server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server exited")
}

func openStore(ctx context.Context, cfg db.Config, logger *logrus.Logger) (storeHandle, error) {
	switch cfg.Driver {
	case db.DriverMySQL:
		gdb, err := db.OpenMySQL(cfg)
		if err != nil {
			return storeHandle{}, err
		}
		if cfg.Migrate {
			if err := db.AutoMigrateMySQL(gdb); err != nil {
				return storeHandle{}, err
			}
		}
		store := repository.NewGormRowStore(gdb)
		return storeHandle{
			store:  store,
			pinger: store.(repository.Pinger),
			close: func() {
				if sqlDB, err := gdb.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil
	default:
		conn, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return storeHandle{}, err
		}
		if cfg.Migrate {
			if err := db.RunMigrations(conn.Pool, logger); err != nil {
				conn.Close()
				return storeHandle{}, err
			}
		}
		store := repository.NewPgxRowStore(conn.Pool)
		return storeHandle{store: store, pinger: store.(repository.Pinger), close: conn.Close}, nil
	}
}

func pdfOptions(cfg config.PDFConfig, logger *logrus.Logger) []export.Option {
	opts := []export.Option{export.WithLogger(logger)}
	if cfg.Browser {
		opts = append(opts, export.WithPrimaryPDF(export.NewChromeRenderer(
			export.WithExecPath(cfg.ChromePath),
			export.WithNoSandbox(cfg.NoSandbox),
			export.WithRenderTimeout(cfg.Timeout),
			export.WithChromeLogger(logger),
		)))
	}

	fonts, err := export.LoadFontSet(cfg.FontFamily, cfg.FontDir, cfg.FontRegular, cfg.FontBold)
	if err != nil {
		logger.WithError(err).Warn("table pdf fonts unavailable, fallback pdf disabled")
		return opts
	}
	table, err := export.NewTablePDF(fonts, export.VisualRTL)
	if err != nil {
		logger.WithError(err).Warn("table pdf renderer unavailable")
		return opts
	}
	return append(opts, export.WithFallbackPDF(table))
}

func healthHandler(pinger repository.Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}
