// Command goidentity-server serves the goIdentity HTTP API.
//
// Configuration is read from GOIDENTITY_* environment variables. The engine
// needs at least GOIDENTITY_JWT_SECRET (32+ bytes). GOIDENTITY_DATABASE_URL
// selects PostgreSQL (postgres://...) or SQLite (sqlite://path); migrations
// run on start. GOIDENTITY_REDIS_ADDR=memory starts an embedded miniredis,
// which is only suitable for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goidentity-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	sc, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(sc.LogLevel, sc.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(sc.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = store.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("database ready", zap.String("dialect", string(store.Dialect())))

	rdb, closeRedis, err := connectRedis(sc, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	mailer, err := newMailer(sc, logger)
	if err != nil {
		return err
	}

	sink, closeSink := newAuditSink(sc, store, logger)
	defer closeSink()

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	api, err := httpapi.New(engine, sc.HTTP, logger)
	if err != nil {
		return err
	}
	srv := api.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}

func connectRedis(sc serverConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if sc.RedisAddr == redisInMemory {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("using in-memory redis; sessions are lost on restart", zap.String("addr", mr.Addr()))
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{sc.RedisAddr},
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func newMailer(sc serverConfig, logger *zap.Logger) (notify.Mailer, error) {
	if sc.MailTransport == "smtp" {
		return notify.NewSMTPMailer(sc.SMTP)
	}
	logger.Warn("mail transport is log; emails are written to the log only")
	return notify.NewLogMailer(logger), nil
}

func newAuditSink(sc serverConfig, store *sqlstore.Store, logger *zap.Logger) (goIdentity.AuditSink, func()) {
	var (
		sinks   goIdentity.MultiSink
		closers []func()
	)
	for _, name := range sc.AuditSinks {
		switch name {
		case "db":
			sinks = append(sinks, sqlstore.NewAuditSink(store, logger))
		case "log":
			sinks = append(sinks, goIdentity.NewZapSink(logger.Named("audit")))
		case "file":
			rotator := &lumberjack.Logger{
				Filename:   sc.AuditFile.Path,
				MaxSize:    sc.AuditFile.MaxSizeMB,
				MaxBackups: sc.AuditFile.MaxBackups,
				MaxAge:     sc.AuditFile.MaxAgeDays,
				Compress:   sc.AuditFile.Compress,
			}
			sinks = append(sinks, goIdentity.NewJSONWriterSink(rotator))
			closers = append(closers, func() { _ = rotator.Close() })
		}
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
