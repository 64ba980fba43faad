package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/geocache"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler"
	httpserver "github.com/Temutjin2k/dispatch-core/internal/adapter/http/server"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/notify"
	adapterpostgres "github.com/Temutjin2k/dispatch-core/internal/adapter/postgres"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/ws"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/internal/service/driversvc"
	"github.com/Temutjin2k/dispatch-core/internal/service/matcher"
	"github.com/Temutjin2k/dispatch-core/internal/service/offersvc"
	"github.com/Temutjin2k/dispatch-core/internal/service/ridesvc"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/postgres"
	"github.com/Temutjin2k/dispatch-core/pkg/rabbit"
	"github.com/Temutjin2k/dispatch-core/pkg/trm"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()
	log := logger.InitLogger("dispatch-core", logger.LevelDebug)

	cfg, err := config.NewConfig()
	if err != nil {
		log.Error(ctx, "failed to configure dispatch core", err)
		os.Exit(1)
	}
	log = logger.InitLogger("dispatch-core", cfg.LogLevel)

	app, err := newApp(ctx, *cfg, log)
	if err != nil {
		log.Error(ctx, "failed to init dispatch core", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error(ctx, "dispatch core exited with error", err)
		os.Exit(1)
	}
}

// app wires every adapter and service the dispatch core needs and owns
// their shutdown order.
type app struct {
	httpServer  *httpserver.API
	postgresDB  *postgres.PostgreDB
	rabbitMQ    *rabbit.RabbitMQ
	redisClient *redis.Client
	wsHub       *ws.Hub
	matcher     *matcher.Service

	cfg config.Config
	log logger.Logger
}

func newApp(ctx context.Context, cfg config.Config, log logger.Logger) (*app, error) {
	pgDB, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rabbitClient, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to setup rabbitmq: %w", err)
	}

	publisher, err := notify.New(rabbitClient, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to setup event publisher: %w", err)
	}

	pgStore := adapterpostgres.NewStore(pgDB.Pool)
	driverStore := geocache.New(pgStore.DriverStore, redisClient, cfg.Geocache, log)

	txm := trm.New(pgDB.Pool)
	clk := clock.NewReal()
	wsHub := ws.New(log)

	driverSvc := driversvc.New(driverStore, txm, clk, log)
	offerSvc := offersvc.New(pgStore.OfferStore, clk, log).
		WithNotifier(wsHub).
		WithPublisher(publisher)
	matcherSvc := matcher.New(pgStore.RideStore, driverStore, offerSvc, clk, cfg.Phases, cfg.Dispatch, log).
		WithPublisher(publisher)
	rideSvc := ridesvc.New(pgStore.RideStore, matcherSvc, txm, cfg.Rides, log).
		WithPublisher(publisher)

	verifier := authgate.NewJWTVerifier(cfg.Auth.JWTSecret)

	rideHandler := handler.NewRide(rideSvc, log)
	driverHandler := handler.NewDriver(driverSvc, offerSvc, rideSvc, wsHub, cfg.Offers, log)

	httpServer := httpserver.New(cfg, rideHandler, driverHandler, verifier, log)

	return &app{
		httpServer:  httpServer,
		postgresDB:  pgDB,
		rabbitMQ:    rabbitClient,
		redisClient: redisClient,
		wsHub:       wsHub,
		matcher:     matcherSvc,
		cfg:         cfg,
		log:         log,
	}, nil
}

// Run recovers any rides that were mid-phase when the process last
// stopped, starts the HTTP server, and blocks until either it fails or
// a shutdown signal arrives.
func (a *app) Run(ctx context.Context) error {
	if err := a.matcher.RecoverStartup(ctx); err != nil {
		a.log.Warn(ctx, "startup recovery scan failed", "err", err.Error())
	}

	errCh := make(chan error, 1)
	a.httpServer.Run(ctx, errCh)

	defer a.close(ctx)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info(ctx, "dispatch core has been started")

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shutting down dispatch core", "signal", sig.String())
		return nil
	}
}

func (a *app) close(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Warn(ctx, "failed to gracefully close http server", "err", err.Error())
		}
	}

	if a.wsHub != nil {
		a.wsHub.Close()
	}

	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(ctx); err != nil {
			a.log.Warn(ctx, "failed to close rabbitmq connection", "err", err.Error())
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn(ctx, "failed to close redis connection", "err", err.Error())
		}
	}

	if a.postgresDB != nil && a.postgresDB.Pool != nil {
		a.postgresDB.Pool.Close()
	}

	a.log.Info(ctx, "dispatch core closed")
}
