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

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storefront-payment/config"
	"storefront-payment/handlers"
	"storefront-payment/i18n"
	"storefront-payment/middleware"
	"storefront-payment/queue"
	"storefront-payment/rabbitmq"
	"storefront-payment/services/auth"
	"storefront-payment/services/checkout"
	"storefront-payment/services/storefront"
	"storefront-payment/utils"
	"storefront-payment/worker"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// setup loads the logger and configuration shared by every command.
func setup() (*zap.Logger, *config.Config, error) {
	bootstrap, err := newLogger("warn")
	if err != nil {
		return nil, nil, err
	}
	cfg := config.Load(bootstrap)

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return logger, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront-payment",
		Short:         "Payment form validation service for the Urban Loom storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe()
			},
		},
		newRelayCmd(),
		newCheckCmd(),
		newWidgetsCmd(),
		newTokenCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// transport is the forwarder chosen by SUBMIT_TRANSPORT plus whatever must be
// closed on shutdown.
type transport struct {
	forwarder checkout.Forwarder
	closers   []func()
}

func (t *transport) close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
}

// submitPlan resolves SUBMIT_TRANSPORT once and reports whether the process
// needs a redis connection for it or for the rate limiter.
func submitPlan(cfg *config.Config) (name string, needRedis bool, err error) {
	name, err = checkout.ParseTransport(cfg.Submit.Transport)
	if err != nil {
		return "", false, err
	}
	return name, cfg.Redis.RateLimitEnabled || name == checkout.TransportRedis, nil
}

// newTransport builds the forwarder for a transport name already resolved by
// submitPlan.
func newTransport(name string, cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (*transport, error) {
	switch name {
	case checkout.TransportRedis:
		if redisClient == nil {
			return nil, errors.New("redis transport needs REDIS_URL")
		}
		q := queue.NewQueue(redisClient, cfg.Submit.QueueName, logger)
		return &transport{forwarder: checkout.NewQueueForwarder(q)}, nil

	case checkout.TransportAMQP:
		pool, err := rabbitmq.NewChannelPool(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.ChannelPoolSize, logger)
		if err != nil {
			return nil, err
		}
		publisher := rabbitmq.NewPublisher(pool, cfg.RabbitMQ.Queue, logger)
		return &transport{
			forwarder: checkout.NewAMQPForwarder(publisher),
			closers:   []func(){pool.Close},
		}, nil

	default:
		return &transport{
			forwarder: checkout.NewHTTPForwarder(cfg.Storefront.BaseURL, cfg.Storefront.Timeout, logger),
		}, nil
	}
}

func runServe() error {
	logger, cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	catalog, err := i18n.Load()
	if err != nil {
		return err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	if cfg.Session.Secret == "" {
		cfg.Session.Secret = utils.GenerateRandomString(64)
	}

	// redis backs the rate limiter and the redis transport; it is optional otherwise
	transportName, needRedis, err := submitPlan(cfg)
	if err != nil {
		return err
	}
	var redisClient *redis.Client
	if needRedis {
		redisClient, err = queue.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Successfully connected to Redis")
	}

	tr, err := newTransport(transportName, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer tr.close()

	var relay *worker.Worker
	if transportName == checkout.TransportRedis {
		q := queue.NewQueue(redisClient, cfg.Submit.QueueName, logger)
		relay = worker.NewWorker(q, checkout.NewHTTPForwarder(cfg.Storefront.BaseURL, cfg.Storefront.Timeout, logger), logger)
		relay.Start(ctx, cfg.Submit.WorkerConcurrency)
		defer relay.Stop()
	}

	sfClient := storefront.NewClient(cfg.Storefront.BaseURL, cfg.Storefront.Timeout, logger)

	var redisPinger handlers.Pinger
	var limiter *middleware.RateLimiter
	if redisClient != nil {
		redisPinger = handlers.PingerFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		if cfg.Redis.RateLimitEnabled {
			limiter = middleware.NewRateLimiter(redisClient, logger)
		}
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		PaymentForm:     handlers.NewPaymentFormHandler(handlers.NewSessionStore(cfg.Session), catalog, tr.forwarder, logger),
		Addresses:       handlers.NewAddressHandler(sfClient, logger),
		Health:          handlers.NewHealthHandler(sfClient, redisPinger),
		Validator:       jwtService,
		RateLimiter:     limiter,
		DefaultLanguage: cfg.I18n.DefaultLanguage,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, gracefully shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
	return nil
}
