package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_service/internal/config"
	"github.com/Skotchmaster/user_service/internal/db"
	"github.com/Skotchmaster/user_service/internal/events"
	"github.com/Skotchmaster/user_service/internal/hash"
	"github.com/Skotchmaster/user_service/internal/httpserver"
	"github.com/Skotchmaster/user_service/internal/logging"
	"github.com/Skotchmaster/user_service/internal/metrics"
	"github.com/Skotchmaster/user_service/internal/repo"
	"github.com/Skotchmaster/user_service/internal/service"
	"github.com/Skotchmaster/user_service/internal/tokens"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(ctx, cfg.DatabaseURL, db.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err == nil {
		err = db.Migrate(ctx, gdb)
	}
	cancel()
	if err != nil {
		log.Fatalf("db init: %v", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("metrics: %v", err)
	}

	codec, err := tokens.NewCodec([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var publisher events.Publisher = events.LogPublisher{}
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		publisher = producer
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	store := repo.New(gdb)
	auth := service.NewAuthService(store, codec)
	users := service.NewUserService(store, auth, publisher, hash.New(cfg.BcryptCost))

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())

	httpserver.Register(e, &httpserver.Deps{
		Logger:         logger,
		Users:          &httpserver.UsersHTTP{Svc: users},
		Admin:          &httpserver.AdminHTTP{Svc: users},
		Internal:       &httpserver.InternalHTTP{Svc: users},
		Gate:           service.NewGate(codec),
		InternalAPIKey: cfg.InternalAPIKey,
		LoginRate:      rate.Limit(cfg.LoginRateLimit),
		LoginBurst:     cfg.LoginRateBurst,
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx, gdb)
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close", "error", err)
		}
	}
	closeDB(gdb)

	logger.Info("users stopped")
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
