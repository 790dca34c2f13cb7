package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/audit"
	"github.com/Skotchmaster/healthcare_records/internal/config"
	"github.com/Skotchmaster/healthcare_records/internal/db"
	"github.com/Skotchmaster/healthcare_records/internal/es"
	"github.com/Skotchmaster/healthcare_records/internal/fieldcrypt"
	"github.com/Skotchmaster/healthcare_records/internal/handlers"
	"github.com/Skotchmaster/healthcare_records/internal/lockout"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/healthcare_records/internal/middleware/logging"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/mykafka"
	"github.com/Skotchmaster/healthcare_records/internal/notify"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
	"github.com/Skotchmaster/healthcare_records/internal/service"
	"github.com/Skotchmaster/healthcare_records/internal/store"
	"github.com/Skotchmaster/healthcare_records/internal/tokens"
	httpserver "github.com/Skotchmaster/healthcare_records/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var closers []io.Closer
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	key, src, err := fieldcrypt.LoadKey(cfg.EncryptionKey, cfg.Production())
	if err != nil {
		fatal("encryption_key_invalid", err)
	}
	if src == fieldcrypt.SourceDevDefault || src == fieldcrypt.SourcePassphrase {
		logger.Warn("encryption_key_derived", "source", string(src))
	}
	cipher, err := fieldcrypt.New(key)
	if err != nil {
		fatal("encryption_init_failed", err)
	}

	gdb, err := db.Open(ctx, cfg.DatabaseURL, models.Encrypted(fieldcrypt.NewPlugin(cipher)))
	if err != nil {
		fatal("db_init_failed", err)
	}
	r := repo.New(gdb)

	var st store.Store
	switch cfg.StateBackend {
	case "redis":
		rdb, err := store.Dial(ctx, store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			fatal("redis_init_failed", err)
		}
		closers = append(closers, rdb)
		st = store.NewRedis(rdb, "healthcare:")
	default:
		mem := store.NewMemory()
		go mem.Run(ctx, cfg.Policy.Lockout.SweepInterval.Duration)
		st = mem
	}
	logger.Info("state_backend", "kind", cfg.StateBackend)

	tk, err := tokens.NewService(tokens.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}, r)
	if err != nil {
		fatal("tokens_init_failed", err)
	}

	guard := lockout.New(st,
		lockout.WithMaxAttempts(cfg.Policy.Lockout.MaxAttempts),
		lockout.WithWindow(cfg.Policy.Lockout.Window.Duration),
		lockout.WithLockDuration(cfg.Policy.Lockout.LockDuration.Duration),
	)

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.CSRFCookieSecure || cfg.Production()
	csrfCfg.SecretTTL = cfg.Policy.CSRF.SecretTTL.Duration
	csrfCfg.MaxAge = cfg.Policy.CSRF.CookieMaxAge.Duration

	var prod *mykafka.Producer
	kafkaProducer := func() *mykafka.Producer {
		if prod == nil {
			p, err := mykafka.NewProducer(cfg.KafkaBrokers)
			if err != nil {
				fatal("kafka_init_failed", err)
			}
			prod = p
			closers = append(closers, p)
		}
		return prod
	}

	var notifier notify.Notifier
	switch cfg.Notifier {
	case "kafka":
		notifier = notify.NewKafka(kafkaProducer(), cfg.NotifyTopic)
	case "rabbitmq":
		n, err := notify.DialAMQP(cfg.RabbitMQURL, cfg.NotifyQueue)
		if err != nil {
			fatal("rabbitmq_init_failed", err)
		}
		closers = append(closers, n)
		notifier = n
	default:
		notifier = notify.NewLog(logger)
	}

	var (
		sink   audit.Sink
		search *audit.Elastic
	)
	switch cfg.AuditSink {
	case "kafka":
		sink = audit.NewKafka(kafkaProducer(), cfg.AuditTopic)
	case "elasticsearch":
		esClient, err := es.NewClient(es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, logger)
		if err != nil {
			fatal("es_init_failed", err)
		}
		search = audit.NewElastic(esClient, cfg.ESIndex)
		sink = search
	default:
		sink = audit.NewLog(logger)
	}
	logger.Info("sinks_configured", "notifier", cfg.Notifier, "audit", cfg.AuditSink)

	authSvc := service.NewAuthService(r, tk, guard, notifier,
		service.WithOTPLifetimes(cfg.Policy.OTP.LoginTTL.Duration, cfg.Policy.OTP.ResetTTL.Duration))

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("1M"))

	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{Svc: authSvc},
		AdminHandler:   &handlers.AdminHandler{Svc: service.NewAdminService(r), Audit: search},
		RecordsHandler: &handlers.RecordsHandler{Svc: service.NewRecordsService(r)},
		Tokens:         tk,
		CSRF:           csrf.NewGuard(csrfCfg, st, tk),
		Audit:          sink,
		Ready:          func(ctx context.Context) error { return ping(ctx, gdb) },
	}
	httpserver.Register(e, &deps)

	go purgeRefresh(ctx, r, time.Hour)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http_listen", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	go func() {
		<-quit
		logger.Warn("force exit")
		os.Exit(1)
	}()

	logger.Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	} else {
		logger.Error("db_handle_error", "error", err)
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close_error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// purgeRefresh drops expired refresh records. Revocation does not depend on
// it; expired records are already rejected on lookup.
func purgeRefresh(ctx context.Context, r *repo.GormRepo, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := r.PurgeExpired(ctx, now)
			if err != nil {
				slog.Error("refresh_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("refresh_purged", "count", n)
			}
		}
	}
}
