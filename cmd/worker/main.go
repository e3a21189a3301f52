package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/queue/tasks"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/config"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/database"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

const workerName = "asset-worker"

func main() {
	mode := pflag.String("mode", "worker", "worker or scheduler")
	pflag.Parse()

	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	opt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}

	var runErr error
	switch *mode {
	case "worker":
		runErr = runWorker(cfg, rdb, opt)
	case "scheduler":
		runErr = runScheduler(cfg, opt)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	if runErr != nil {
		logger.Sync()
		os.Exit(1)
	}
}

func runWorker(cfg *config.Config, rdb *redis.Client, opt asynq.RedisClientOpt) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.L().Fatal("failed to open database", zap.Error(err))
	}

	client, err := bus.Connect(ctx, rdb, workerName, cfg.BusRequestTimeout)
	if err != nil {
		logger.L().Fatal("bus connection failed", zap.Error(err))
	}
	defer client.Close()

	// imports must not run against unknown limits
	licensingStream, err := client.Subscribe(ctx, bus.StreamLicensing, ".*")
	if err != nil {
		logger.L().Fatal("licensing stream subscription failed", zap.Error(err))
	}
	licensing := services.NewLicensing()
	if err := licensing.Query(ctx, client); err != nil {
		logger.L().Fatal("licensing limits unavailable", zap.Error(err))
	}

	repo := repository.NewAssetRepository(db)
	events := services.NewEventPublisher(repo, client)
	svc := services.NewAssetService(repo, licensing, services.NewActivator(client), events,
		services.NewNotifier(client, repository.NewEventRepository(db)),
		services.Options{EnameMaxLength: cfg.EnameMaxLength, MaxPowerSources: cfg.MaxPowerSources})

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
	})
	mux := asynq.NewServeMux()
	tasks.NewAssetTaskHandler(svc, client, cfg.AgentName).Register(mux)

	errCh := make(chan error, 2)
	go func() {
		if err := licensing.Follow(ctx, licensingStream); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	err = waitForSignal(errCh)
	srv.Shutdown()
	return err
}

func runScheduler(cfg *config.Config, opt asynq.RedisClientOpt) error {
	scheduler := asynq.NewScheduler(opt, nil)
	cronspec := fmt.Sprintf("@every %s", cfg.AssetsRepeat)
	if _, err := scheduler.Register(cronspec, tasks.NewRepublishAllTask()); err != nil {
		logger.L().Fatal("failed to register republish task", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("asynq scheduler starting", zap.String("cronspec", cronspec))
		if err := scheduler.Run(); err != nil {
			errCh <- err
		}
	}()

	err := waitForSignal(errCh)
	scheduler.Shutdown()
	return err
}

// waitForSignal blocks until a shutdown signal or a failure on errCh, which
// it returns.
func waitForSignal(errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
		return nil
	case err := <-errCh:
		logger.L().Error("stopped with error", zap.Error(err))
		return err
	}
}
