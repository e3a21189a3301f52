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

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/agent"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api/handlers"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/autoupdate"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/inventory"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/services"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/config"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/database"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

const (
	autoupdateName = "asset-autoupdate"
	inventoryName  = "asset-inventory"
	ngSuffix       = "-ng"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run serves until a shutdown signal and returns the error that stopped an
// actor or the HTTP server, if any.
func run() error {
	verbose := pflag.BoolP("verbose", "v", false, "verbose logging")
	help := pflag.BoolP("help", "h", false, "print this information")
	pflag.Parse()
	if *help {
		fmt.Fprintln(os.Stdout, "Usage: fty-asset [options] ...")
		pflag.PrintDefaults()
		return nil
	}

	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	if *verbose {
		logger.SetVerbose()
	}

	log.Info("starting fty-asset",
		zap.String("env", cfg.AppEnv),
		zap.String("agent", cfg.AgentName),
		zap.Duration("assets_repeat", cfg.AssetsRepeat),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to get database handle", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer rdb.Close()

	agentBus := mustConnect(ctx, log, rdb, cfg.AgentName, cfg.BusRequestTimeout)
	defer agentBus.Close()
	updaterBus := mustConnect(ctx, log, rdb, autoupdateName, cfg.BusRequestTimeout)
	defer updaterBus.Close()
	inventoryBus := mustConnect(ctx, log, rdb, inventoryName, cfg.BusRequestTimeout)
	defer inventoryBus.Close()

	assetsStream := mustSubscribe(ctx, log, agentBus, bus.StreamAssets)
	licensingStream := mustSubscribe(ctx, log, agentBus, bus.StreamLicensing)
	inventoryStream := mustSubscribe(ctx, log, inventoryBus, bus.StreamAssets)

	repo := repository.NewAssetRepository(db)
	licensing := services.NewLicensing()
	events := services.NewEventPublisher(repo, agentBus)
	svc := services.NewAssetService(repo, licensing, services.NewActivator(agentBus), events,
		services.NewNotifier(agentBus, repository.NewEventRepository(db)),
		services.Options{EnameMaxLength: cfg.EnameMaxLength, MaxPowerSources: cfg.MaxPowerSources})

	assetAgent := agent.New(agent.Deps{
		Bus:          agentBus,
		Repo:         repo,
		Service:      svc,
		Topology:     services.NewTopology(repo),
		Events:       events,
		Licensing:    licensing,
		ReplyTimeout: cfg.BusRequestTimeout,
	})
	updater := autoupdate.New(updaterBus, cfg.AgentName, cfg.BusRequestTimeout)
	cache, err := inventory.NewCache(ctx, inventory.DefaultTTL)
	if err != nil {
		log.Fatal("failed to create inventory cache", zap.Error(err))
	}
	inv := inventory.New(repo, cache)

	queueOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: 0}
	queue := asynq.NewClient(queueOpt)
	defer queue.Close()
	inspector := asynq.NewInspector(queueOpt)
	defer inspector.Close()

	router := api.NewRouter(ctx, api.Dependencies{
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Check{
			"database": sqlDB.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		AssetsHandler:  handlers.NewAssetsHandler(svc),
		ImportsHandler: handlers.NewImportsHandler(queue, inspector, validator.New(validator.WithRequiredStructEnabled())),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return assetAgent.Run(gctx, agent.Inputs{
			Mailbox:   agentBus.Mailbox(),
			NG:        agentBus.MailboxOf(cfg.AgentName + ngSuffix),
			Assets:    assetsStream,
			Licensing: licensingStream,
		})
	})
	g.Go(func() error {
		return updater.Run(gctx, config.WakeupPeriod, updaterBus.Mailbox())
	})
	g.Go(func() error {
		return inv.Run(gctx, inventoryStream)
	})
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := awaitShutdown(log, sigCh, errCh, cancel, cfg.ShutdownTimeout); err != nil {
		return err
	}
	log.Info("fty-asset exited")
	return nil
}

// awaitShutdown waits for a signal, then cancels and gives the actors timeout
// to stop. An actor stopping first is a failure.
func awaitShutdown(log *zap.Logger, sigCh <-chan os.Signal, errCh <-chan error, cancel context.CancelFunc, timeout time.Duration) error {
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				log.Error("shutdown error", zap.Error(err))
			}
		case <-time.After(timeout):
			log.Warn("actors did not stop in time")
		}
		return nil
	case err := <-errCh:
		cancel()
		if err == nil {
			err = errors.New("actors stopped without a shutdown signal")
		}
		log.Error("actor stopped", zap.Error(err))
		return err
	}
}

func mustConnect(ctx context.Context, log *zap.Logger, rdb redis.UniversalClient, name string, timeout time.Duration) *bus.Client {
	c, err := bus.Connect(ctx, rdb, name, timeout)
	if err != nil {
		log.Fatal("bus connection failed", zap.String("name", name), zap.Error(err))
	}
	return c
}

func mustSubscribe(ctx context.Context, log *zap.Logger, c *bus.Client, stream string) <-chan *bus.Message {
	ch, err := c.Subscribe(ctx, stream, ".*")
	if err != nil {
		log.Fatal("stream subscription failed", zap.String("stream", stream), zap.Error(err))
	}
	return ch
}
