package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/ordering/internal/config"
	"github.com/kiwari-pos/ordering/internal/notify"
	"github.com/kiwari-pos/ordering/internal/realtime"
	"github.com/kiwari-pos/ordering/internal/router"
	"github.com/kiwari-pos/ordering/internal/service"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/kiwari-pos/ordering/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// backend bundles the store roles one driver provides.
type backend struct {
	orders  store.OrderStore
	feed    store.Feed
	catalog store.Catalog
	users   store.Users
	close   func()
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := cfg.Pricing()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pricing config")
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}
	defer be.close()

	// Realtime: one broker over the store feed, one hub for connected sockets
	broker := realtime.NewBroker(be.orders, be.feed)
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Notifications go to connected sockets and, when configured, RabbitMQ
	channels := notify.Fanout{hub}
	if cfg.RabbitMQURL != "" {
		amqpCh, err := notify.DialAMQP(cfg.RabbitMQURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer amqpCh.Close()
		channels = append(channels, amqpCh)
		log.Info().Str("exchange", notify.Exchange).Msg("Publishing notifications to RabbitMQ")
	} else {
		channels = append(channels, notify.LogChannel{})
	}
	dispatcher := notify.NewDispatcher(channels)

	orderService := service.NewOrderService(be.orders, be.catalog, dispatcher, policy)

	r := router.New(cfg, router.Deps{
		Orders:  orderService,
		Catalog: be.catalog,
		Users:   be.users,
		Hub:     hub,
		Broker:  broker,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "ordering").Logger()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.StoreDriver == config.StorePostgres {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		pg := store.NewPostgres(pool)
		closeAll := func() {
			pg.Close()
			pool.Close()
		}
		return &backend{orders: pg, feed: pg, catalog: pg, users: pg, close: closeAll}, nil
	}

	// The in-memory store starts empty, so give it a menu and a staff login.
	mem := store.NewMemory()
	users := store.NewMemoryUsers()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	err = store.Seed(ctx, mem, users, store.StaffAccount{
		Email:        "admin@kiwari.com",
		FullName:     "Admin Kiwari",
		PasswordHash: string(hashed),
	})
	if err != nil {
		return nil, err
	}
	log.Warn().Msg("Using in-memory store; data is lost on restart. Staff login: admin@kiwari.com / password123")
	return &backend{orders: mem, feed: mem, catalog: mem, users: users, close: func() {}}, nil
}
