package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/gateway"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/mongostore"
	"github.com/gitshopapp/storefront/internal/reconcile"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	Mongo          *mongo.Client
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Publisher      *events.KafkaPublisher
	Gateway        *gateway.Gateway
	Orders         *services.OrderService
	Scheduler      *reconcile.Scheduler
	Handlers       *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires stores, clients and services. It does not start the
// reconcile scheduler; call StartScheduler for that.
func NewWithConfig(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.initSentry(); err != nil {
		return nil, err
	}
	a.Logger = newLogger(cfg, a.sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	store, health, err := a.openStore(startupCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.CacheProvider, err = cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		Logger:                a.Logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	a.SessionManager = session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	productCatalog, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	carrierClient, err := carrier.NewClient(carrier.Config{
		BaseURL: cfg.CarrierBaseURL,
		Token:   cfg.CarrierToken,
		ShopID:  cfg.CarrierShopID,
		Origin: carrier.Origin{
			Name:       cfg.CarrierFromName,
			Phone:      cfg.CarrierFromPhone,
			Address:    cfg.CarrierFromAddress,
			DistrictID: cfg.CarrierFromDistrictID,
			WardCode:   cfg.CarrierFromWardCode,
		},
		ServiceTypeID: cfg.CarrierServiceTypeID,
		Timeout:       cfg.CarrierTimeout,
	}, a.Logger.With("component", "carrier_client"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize carrier client: %w", err)
	}

	a.Gateway, err = gateway.New(gateway.Config{
		PaymentURL:  cfg.GatewayURL,
		TmnCode:     cfg.GatewayTmnCode,
		HashSecret:  cfg.GatewayHashSecret,
		ReturnURL:   cfg.GatewayReturnURL,
		Locale:      cfg.GatewayLocale,
		Location:    cfg.GatewayLocation(),
		ExpireAfter: cfg.GatewayExpireAfter,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize payment gateway: %w", err)
	}

	notifier, err := a.newNotifier(productCatalog.Shop().Name)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orders = services.NewOrderService(
		store,
		carrierClient,
		a.Gateway,
		a.CacheProvider,
		notifier,
		cfg.DefaultItemWeight,
		a.Logger.With("component", "order_service"),
	)
	fees := services.NewFeeCalculator(
		carrierClient,
		a.CacheProvider,
		cfg.FeeQuoteTTL,
		services.FeePolicy(cfg.FeeFailurePolicy),
		cfg.DefaultItemWeight,
		a.Logger.With("component", "fee_calculator"),
	)
	checkoutService := services.NewCheckoutService(productCatalog, fees, a.Orders, a.Logger.With("component", "checkout_service"))
	paymentService := services.NewPaymentService(a.Gateway, a.Orders, a.Logger.With("component", "payment_service"))
	adminService := services.NewAdminService(store, a.Orders, a.Logger.With("component", "admin_service"))

	a.Scheduler = reconcile.NewScheduler(a.Orders, carrierClient, reconcile.Config{
		Interval:    cfg.ReconcileInterval,
		Concurrency: cfg.ReconcileConcurrency,
	}, a.Logger.With("component", "reconcile"))

	a.Handlers, err = handlers.New(handlers.Dependencies{
		Config:          cfg,
		Health:          health,
		Catalog:         productCatalog,
		CheckoutService: checkoutService,
		PaymentService:  paymentService,
		OrderService:    a.Orders,
		AdminService:    adminService,
		SessionManager:  a.SessionManager,
		Logger:          a.Logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return a, nil
}

func (a *App) initSentry() error {
	if strings.TrimSpace(a.Config.SentryDSN) == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              a.Config.SentryDSN,
		Environment:      a.Config.SentryEnvironment,
		EnableTracing:    a.Config.SentryTracesSampleRate > 0,
		TracesSampleRate: a.Config.SentryTracesSampleRate,
		EnableLogs:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	a.sentryEnabled = true
	return nil
}

func (a *App) openStore(ctx context.Context) (services.OrderStore, handlers.Pinger, error) {
	switch a.Config.StoreDriver {
	case "mongo":
		client, err := mongostore.Connect(ctx, a.Config.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		a.Mongo = client
		store := mongostore.NewOrderStore(client.Database(a.Config.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure mongo indexes: %w", err)
		}
		return store, store, nil
	default:
		pool, err := db.Connect(ctx, a.Config.DatabaseURL, db.PoolOptions{
			ApplicationName:  "storefront",
			MaxConns:         a.Config.DatabaseMaxConns,
			StatementTimeout: a.Config.DatabaseStatementTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		a.DB = pool
		applied, err := db.Migrate(ctx, pool, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		if len(applied) > 0 {
			a.Logger.Info("applied migrations", "migrations", applied)
		}
		return db.NewOrderStore(pool), pool, nil
	}
}

func (a *App) newNotifier(shopName string) (services.Notifier, error) {
	cfg := a.Config
	var sinks services.MultiNotifier

	if cfg.EmailProvider != "" {
		provider, err := email.NewProvider(email.Config{
			Provider: cfg.EmailProvider,
			APIKey:   cfg.EmailAPIKey,
			From:     cfg.EmailFrom,
			Domain:   cfg.EmailDomain,
			BaseURL:  cfg.EmailBaseURL,
			Timeout:  cfg.EmailTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email provider: %w", err)
		}
		renderer, err := email.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email templates: %w", err)
		}
		sinks = append(sinks, services.NewEmailNotifier(provider, renderer, shopName, cfg.BaseURL, a.Logger))
	}

	if cfg.EventsProvider == "kafka" {
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Brokers(),
			Topic:        cfg.KafkaTopic,
			BatchTimeout: cfg.KafkaBatch,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		a.Publisher = publisher
		sinks = append(sinks, services.NewEventNotifier(publisher, a.Logger))
	}

	return sinks, nil
}

// StartScheduler starts the carrier sweep when RECONCILE_ENABLED is set.
func (a *App) StartScheduler(ctx context.Context) error {
	if a == nil || a.Scheduler == nil || !a.Config.ReconcileEnabled {
		return nil
	}
	return a.Scheduler.Start(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if a.Scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Scheduler.Stop(stopCtx); err != nil {
			logger.Warn("failed to stop reconcile scheduler", "error", err)
		}
		cancel()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.SessionManager != nil {
		closeSessionManager(logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.Mongo.Disconnect(ctx); err != nil {
			logger.Warn("failed to disconnect mongo", "error", err)
		}
		cancel()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func newLogger(cfg *config.Config, withSentry bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if withSentry {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError, sentryslog.LevelFatal},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
		}.NewSentryHandler(context.Background())
		handler = logging.MultiHandler(handler, sentryHandler)
	}

	return slog.New(handler)
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
