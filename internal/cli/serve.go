package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/flight-seating/internal/config"
	"github.com/iliyamo/flight-seating/internal/database"
	"github.com/iliyamo/flight-seating/internal/handler"
	"github.com/iliyamo/flight-seating/internal/logger"
	"github.com/iliyamo/flight-seating/internal/middleware"
	"github.com/iliyamo/flight-seating/internal/router"
	"github.com/iliyamo/flight-seating/internal/seating"
	"github.com/iliyamo/flight-seating/internal/service"
)

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the seating HTTP server",
		Long: `Run the HTTP server in front of the flight seating actors.

Configuration is read from the environment and an optional .env file.
STORAGE_DRIVER selects where seats live:
  sqlite  - one SQLite file per flight under DATA_DIR (default)
  mysql   - a shared flight_seats table scoped by flight key
  memory  - in-memory, lost on deactivation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv()
			cfg := config.Load()
			log := logger.New(cfg.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	open, db, err := storeOpener(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	dir := seating.NewDirectory(open, seating.DirectoryConfig{
		IdleTTL:       cfg.ActorIdleTTL,
		SweepInterval: cfg.ActorSweepInterval,
		CallTimeout:   cfg.ActorCallTimeout,
		QueueCapacity: cfg.ActorQueueCap,
		Logger:        log,
	})
	defer dir.Close()
	go dir.Run(ctx)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; cache and rate limit disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewSeatCache(config.LoadCacheConfig(), rdb)

	var pub handler.EventPublisher
	if cfg.EventsEnabled {
		p := service.NewPublisher(cfg.RabbitURL, log)
		defer p.Close()
		pub = p
	}

	e := newEcho(log)
	router.RegisterRoutes(e)
	router.RegisterFlights(e, handler.NewFlightHandler(dir, pub, cache, log), cfg.JWTSecret, router.FlightMiddleware{
		Cache:     cache.Middleware(),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// storeOpener picks the seat storage. For mysql it also returns the shared
// pool, which the caller closes.
func storeOpener(cfg config.Config) (seating.StoreOpener, *sql.DB, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		return seating.SQLiteStores(cfg.DataDir), nil, nil
	case config.DriverMemory:
		return seating.MemoryStores(), nil, nil
	case config.DriverMySQL:
		db, err := database.OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		return seating.MySQLStores(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// newEcho builds the Echo instance with panic recovery and slog access logs.
func newEcho(log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				log.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	return e
}

// loadDotEnv loads .env when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}
