package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/httpserver"
	"github.com/Skotchmaster/shiken_shop/internal/search"
	"github.com/Skotchmaster/shiken_shop/internal/service"
	"github.com/Skotchmaster/shiken_shop/internal/storage"
	"github.com/Skotchmaster/shiken_shop/pkg/config"
	pkgdb "github.com/Skotchmaster/shiken_shop/pkg/db"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
	authmw "github.com/Skotchmaster/shiken_shop/pkg/middleware/auth"
	"github.com/Skotchmaster/shiken_shop/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/shiken_shop/pkg/middleware/logging"
)

const (
	sweepEvery  = 5 * time.Minute
	sessionIdle = 30 * time.Minute
)

func openStorage(ctx context.Context, cfg config.Config) (storage.Backend, service.LockoutTracker, error) {
	lockout := service.NewMemoryLockout(cfg.LoginMaxAttempts, cfg.LoginLockout)

	switch cfg.StorageDriver {
	case "memory":
		return storage.NewMemoryBackend(), lockout, nil
	case "sqlite":
		db, err := pkgdb.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return gormBackend(ctx, db, lockout)
	case "postgres":
		db, err := pkgdb.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return gormBackend(ctx, db, lockout)
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisBackend(client, ""), service.NewRedisLockout(client, cfg.LoginMaxAttempts, cfg.LoginLockout), nil
	}
	return nil, nil, errors.New("unknown storage driver " + cfg.StorageDriver)
}

func gormBackend(ctx context.Context, db *gorm.DB, lockout service.LockoutTracker) (storage.Backend, service.LockoutTracker, error) {
	b, err := storage.NewGormBackend(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return b, lockout, nil
}

func openEvents(cfg config.Config) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}
	if err := events.EnsureTopics(cfg.KafkaBrokers[0], events.Topics()...); err != nil {
		slog.Warn("kafka_topics_error", "error", err)
	}
	p, err := events.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openSearch(ctx context.Context, cfg config.Config) search.Index {
	if cfg.ESURL == "" {
		return nil
	}
	es, err := search.NewClient(ctx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		slog.Warn("elasticsearch_unavailable", "error", err)
		return nil
	}
	return search.NewESIndex(es, cfg.ESIndex)
}

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.SessionSecret, "SESSION_SECRET")
	if cfg.AdminEmail != "" {
		config.MustNonEmpty(cfg.AdminPassword, "ADMIN_PASSWORD")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)
	ctx := logging.IntoContext(context.Background(), logger)

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	backend, lockout, err := openStorage(startCtx, cfg)
	if err != nil {
		cancel()
		log.Fatalf("storage %s: %v", cfg.StorageDriver, err)
	}
	idx := openSearch(startCtx, cfg)
	cancel()

	pub, err := openEvents(cfg)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}

	opts := app.Options{
		Backend:       backend,
		Events:        pub,
		Lockout:       lockout,
		AutoLogin:     cfg.AutoLogin,
		CheckoutDelay: cfg.CheckoutDelay,
		ToastTTL:      cfg.ToastTTL,
		Search:        idx,
	}
	mgr := app.NewManager(opts)

	if err := mgr.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	shared := backend.Scope(storage.SharedNamespace)
	h := &httpserver.Handler{
		Manager:  mgr,
		Sessions: authmw.NewSessionMiddleware(cfg.SessionSecret, cfg.SessionTTL),
		Ready: func(ctx context.Context) error {
			_, err := shared.Get(ctx, "products")
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	var apiMW []echo.MiddlewareFunc
	if cfg.CSRFEnabled {
		apiMW = append(apiMW, csrf.Middleware(csrf.DefaultConfig()))
	}
	httpserver.Register(e, h, apiMW...)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

loop:
	for {
		select {
		case <-sweep.C:
			if n := mgr.Sweep(sessionIdle); n > 0 {
				logger.Debug("sessions_swept", "count", n)
			}
		case <-stop:
			break loop
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if err := pub.Close(); err != nil {
		logger.Error("kafka_close_error", "error", err)
	}
	if err := backend.Close(); err != nil {
		logger.Error("storage_close_error", "error", err)
	}
	logger.Info("stopped")
}
