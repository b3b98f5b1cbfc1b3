package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/metrics"
	"github.com/sakashimaa/ravolux/internal/notification"
	"github.com/sakashimaa/ravolux/internal/pkg/token"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
	transport "github.com/sakashimaa/ravolux/internal/transport/http"
	"github.com/sakashimaa/ravolux/internal/transport/http/handler"
	kafkaTransport "github.com/sakashimaa/ravolux/internal/transport/kafka"
	"github.com/sakashimaa/ravolux/pkg/config"
	"github.com/sakashimaa/ravolux/pkg/db"
	"github.com/sakashimaa/ravolux/pkg/kafka"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/ravolux/pkg/outbox/repository"
	"github.com/sakashimaa/ravolux/pkg/outbox/worker"
	"github.com/sakashimaa/ravolux/pkg/utils"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	app := &cli.App{
		Name:  "ravolux",
		Usage: "RAVOLUX storefront API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the yaml config",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, outbox worker and notification consumer",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "apply pending migrations before serving",
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrateDB,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "0 migrates up fully, negative values roll back",
					},
				},
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for ADMIN_PASSWORD_HASH",
				ArgsUsage: "<password>",
				Action:    hashPassword,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("ravolux: %v", err)
	}
}

func migrateDB(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, c.Int("steps")); err != nil {
		return err
	}

	log.Println("Migrations applied")
	return nil
}

func hashPassword(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		return errors.New("password argument is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}

func serve(c *cli.Context) (err error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "ravolux",
		Environment: cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Enabled:     cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer closeWith(&err, logger, "tracer", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	})

	if c.Bool("migrate") {
		if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, 0); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer closeWith(&err, logger, "redis", redisClient.Close)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, product reads will hit postgres", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	defer closeWith(&err, logger, "kafka producer", producer.Close)

	tokens, err := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	m := metrics.New()
	validate := utils.NewValidator()
	pricing := domain.NewPricingRules(
		cfg.Pricing.FreeShippingThreshold,
		cfg.Pricing.FlatShippingFee,
		cfg.Pricing.PromoCode,
		cfg.Pricing.PromoRate,
	)

	outboxRepo := outboxRepository.NewOutboxRepository(logger)
	cartRepo := repository.NewCartRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)
	newsletterRepo := repository.NewNewsletterRepository(pool, logger)
	contactRepo := repository.NewContactRepository(pool, logger)

	cartService := service.NewCartService(pool, cartRepo, validate, m, logger)
	orderService := service.NewOrderService(pool, orderRepo, cartRepo, outboxRepo, pricing, validate, m, logger)
	productService := service.NewCachedProductService(
		service.NewProductService(productRepo, validate, logger),
		redisClient,
		cfg.Redis.CacheTTL,
		logger,
	)
	authService := service.NewAuthService(
		pool,
		userRepo,
		outboxRepo,
		cartService,
		tokens,
		validate,
		service.AdminCredentials{Email: cfg.Admin.Email, PasswordHash: cfg.Admin.PasswordHash},
		cfg.SMTP.BaseURL,
		logger,
	)
	newsletterService := service.NewNewsletterService(newsletterRepo, validate, logger)
	contactService := service.NewContactService(pool, contactRepo, outboxRepo, validate, logger)
	emailService := service.NewEmailService(pool, outboxRepo, validate, logger)

	renderer, err := notification.NewRenderer(cfg.SMTP.BaseURL)
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	notificationService := notification.NewNotificationService(
		pool,
		renderer,
		notification.NewSMTPSender(cfg.SMTP, logger),
		m,
		logger,
	)
	consumer := kafkaTransport.NewConsumer(notificationService, cfg.Kafka, logger)

	outboxProcessor := worker.NewOutboxProcessor(
		pool,
		outboxRepo,
		producer,
		logger,
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithInterval(cfg.Outbox.Interval),
	)

	store := session.New(session.Config{
		Expiration:     cfg.Admin.SessionTTL,
		KeyLookup:      "cookie:ravolux_admin",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.Env == "prod",
	})

	timeout := cfg.HTTP.Timeout
	handlers := &transport.Handlers{
		Auth:       handler.NewAuthHandler(authService, timeout, logger),
		Product:    handler.NewProductHandler(productService, timeout, logger),
		Cart:       handler.NewCartHandler(cartService, timeout, logger),
		Order:      handler.NewOrderHandler(orderService, timeout, logger),
		Newsletter: handler.NewNewsletterHandler(newsletterService, timeout, logger),
		Contact:    handler.NewContactHandler(contactService, timeout, logger),
		Email:      handler.NewEmailHandler(emailService, timeout, logger),
		Admin:      handler.NewAdminHandler(authService, store, timeout, logger),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"postgres": pool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}, logger),
	}

	app := transport.NewApp(cfg.HTTP, cfg.Limiter, m, logger)
	transport.RegisterRoutes(app, handlers, authService, store, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxProcessor.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			mylogger.Error(ctx, logger, "Notification consumer stopped", zap.Error(err))
		}
	}()

	listenErr := make(chan error, 1)
	go func() {
		mylogger.Info(ctx, logger, "HTTP server listening", zap.String("port", cfg.HTTP.Port))
		listenErr <- app.Listen(cfg.HTTP.Port)
	}()

	select {
	case <-ctx.Done():
	case err = <-listenErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down")

	err = multierr.Append(err, app.ShutdownWithContext(shutdownCtx))
	wg.Wait()

	return err
}

// closeWith runs closeFn on the way out of serve and folds its error into
// *errp, so early returns release everything opened before them.
func closeWith(errp *error, logger *zap.Logger, name string, closeFn func() error) {
	if closeErr := closeFn(); closeErr != nil {
		logger.Error("Failed to close "+name, zap.Error(closeErr))
		*errp = multierr.Append(*errp, fmt.Errorf("close %s: %w", name, closeErr))
	}
}
