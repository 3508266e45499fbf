package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLog := logger.New("info", "json", serviceName)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	log.Info().Str("storage", cfg.StorageDriver).Msg("storefront starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, outbox := openStore(cfg, log)
	defer store.Close()

	// Redis is optional: without it carts are read straight from the store
	// and idempotency keys are ignored.
	var (
		cartCache   cache.CartCache = cache.NoopCache{}
		checkoutOps []service.CheckoutOption
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connection failed")
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis ping succeeded")
		cartCache = cache.NewRedisCache(redisClient, cfg.CartCacheTTL)
		checkoutOps = append(checkoutOps, service.WithIdempotency(cache.NewRedisIdempotencyStore(redisClient, cfg.IdempotencyTTL)))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.NotificationsTopic, cfg.KafkaBrokers...)
		defer writer.Close()
		notifier = notify.NewKafkaNotifier(writer)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.NotificationsTopic).Msg("kafka notifications enabled")
	}

	gateway := newGateway(cfg, log)

	notifications := service.NewNotifications(notifier, cfg.NotifyTimeout, m, log)
	carts := service.NewCartService(store, cartCache, log)
	checkout := service.NewCheckoutService(store, carts, gateway, notifications, log,
		append(checkoutOps,
			service.WithCheckoutMetrics(m),
			service.WithStaleOrderAge(cfg.StaleOrderAge))...)
	svc := h.Services{
		Carts:      carts,
		Checkout:   checkout,
		Settlement: service.NewSettlementService(store, carts, gateway, notifications, m, log),
		Orders:     service.NewOrderService(store, notifications, log),
		Coupons:    service.NewCouponService(store, log),
	}

	var eventWriter publisher.MessageWriter = publisher.NewLogWriter(log)
	if len(cfg.KafkaBrokers) > 0 {
		writer := notify.NewKafkaWriter(cfg.OrderEventsTopic, cfg.KafkaBrokers...)
		defer writer.Close()
		eventWriter = writer
	}
	poller := publisher.NewOutboxPoller(outbox, eventWriter, log,
		publisher.WithEventTick(cfg.OutboxPollInterval),
		publisher.WithRecoverer(checkout),
		publisher.WithMetrics(m))
	go poller.Run(ctx)

	routerCfg := h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Logger:             log,
		Metrics:            m,
		Gatherer:           registry,
	}
	if p, ok := store.(pinger); ok {
		routerCfg.HealthCheck = p.Ping
	}
	router := h.NewRouter(svc, routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

type pinger interface {
	Ping(ctx context.Context) error
}

type closableOutboxStore interface {
	repository.Store
	repository.OutboxStore
}

func openStore(cfg *config.Config, log zerolog.Logger) (repository.Store, repository.OutboxStore) {
	var store closableOutboxStore
	switch cfg.StorageDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		seedDemoCatalog(mem, log)
		store = mem
	default:
		creds := &repository.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			SSLMode:           cfg.DBSSLMode,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		repo, err := repository.NewRepository(creds)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := repo.RunMigrations(creds); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("database migrations completed")
		store = repo
	}
	return store, store
}

func newGateway(cfg *config.Config, log zerolog.Logger) payment.Gateway {
	if cfg.StripeSecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, card payments are disabled")
		return payment.Disabled{}
	}

	breaker := circuitbreaker.DefaultConfig()
	breaker.OnStateChange = func(name, from, to string) {
		log.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state changed")
	}
	return payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.PaymentCurrency,
		SuccessURL:    cfg.PaymentSuccessURL,
		CancelURL:     cfg.PaymentCancelURL,
		Timeout:       cfg.PaymentTimeout,
		Breaker:       breaker,
	})
}
