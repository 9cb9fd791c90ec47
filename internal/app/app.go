// Package app wires configuration, storage, the auth provider and the HTTP handlers into a
// runnable service.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/config"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/flow"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/geo"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/handlers"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/identity"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/middleware"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/provider"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/session"
	"github.com/eti-roma/verte-culture-connect-sub000/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options are the external resources the service runs on. Optional fields are built
// from Config when left nil.
type Options struct {
	Config *config.Config
	DB     *gorm.DB
	Broker rabbitmq.Broker
	Logger *zap.Logger

	Provider   provider.Provider
	PhotoStore services.PhotoStore
	Analyzer   services.Analyzer
	Cities     services.CityResolver
	// AccessLog enables Fiber's request logger.
	AccessLog bool
}

// App is the assembled service.
type App struct {
	Fiber         *fiber.App
	Provider      provider.Provider
	Gateway       *services.AuthGateway
	Flows         *flow.Controller
	States        *session.Registry
	Notifications *services.NotificationService

	flowStore *flow.Store
	flowTTL   time.Duration
	broker    rabbitmq.Broker
	logger    *zap.Logger
	unbind    func()
}

// New assembles the service.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.DB == nil || opts.Broker == nil {
		return nil, fmt.Errorf("database and broker are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	db := opts.DB
	parser := identity.NewParser(cfg.DefaultCallingCode)

	p := opts.Provider
	if p == nil {
		var err error
		if p, err = newProvider(cfg, db, opts.Broker, logger); err != nil {
			return nil, err
		}
	}

	store := opts.PhotoStore
	if store == nil {
		var err error
		if store, err = newPhotoStore(cfg); err != nil {
			return nil, err
		}
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = services.NewSimulatedAnalyzer(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	}
	cities := opts.Cities
	if cities == nil {
		geoClient := &http.Client{Timeout: cfg.GeoTimeout}
		cities = geo.NewResolver(
			geo.NewNominatimClient(cfg.GeoNominatimURL, cfg.GeoUserAgent, geoClient),
			geo.NewIPAPIClient(cfg.GeoIPAPIURL, geoClient),
			cfg.GeoTimeout, logger.Named("geo"))
	}

	profileTable := repositories.NewGORMTable[models.Profile](db)
	notificationTable := repositories.NewGORMTable[models.Notification](db)

	gateway := services.NewAuthGateway(p, profileTable, parser, cfg.AuthRedirectURL, logger.Named("auth"))
	profiles := services.NewProfileService(profileTable, cities, parser, logger.Named("profiles"))
	notifications := services.NewNotificationService(opts.Broker, notificationTable, logger.Named("notifications"))
	photoRecords := record[models.PhotoAnalysis](db, cfg, "photo_analyses", true, []string{"culture_type", "status"}, logger)
	photos := services.NewPhotoAnalysisService(store, analyzer, photoRecords.Writer(), notifications, logger.Named("photos"))
	photoRecords.OnRead(photos.ResolveURL)

	flowStore := flow.NewStore(cfg.FlowTTL, nil)
	flows := flow.NewController(gateway, profiles, flowStore, cfg.ResendCooldown, logger.Named("flow"))
	states := session.NewRegistry(0, 0)

	a := &App{
		Provider:      p,
		Gateway:       gateway,
		Flows:         flows,
		States:        states,
		Notifications: notifications,
		flowStore:     flowStore,
		flowTTL:       cfg.FlowTTL,
		broker:        opts.Broker,
		logger:        logger,
	}
	a.unbind = states.Bind(p)

	app := fiber.New(fiber.Config{
		AppName:      "verte-culture-connect",
		ErrorHandler: middleware.ErrorHandler(states, logger.Named("http")),
		BodyLimit:    12 << 20,
	})
	app.Use(middleware.Recover(logger.Named("http")))
	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"time":    time.Now().Format(time.RFC3339),
			"loading": gateway.Loading(),
		})
	})

	recoverer, _ := p.(provider.Recoverer)
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(gateway, recoverer, logger.Named("auth")).RegisterRoutes(apiV1)
	handlers.NewFlowHandler(flows).RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(p, logger.Named("auth")))
	handlers.NewAccountHandler(p, profiles, states, cities, logger.Named("account")).RegisterRoutes(protected)
	handlers.NewRecordHandler(collections(db, cfg, notifications, photoRecords, logger)...).RegisterRoutes(protected)
	handlers.NewPhotoHandler(photos).RegisterRoutes(protected)
	handlers.NewNotificationHandler(notifications).RegisterRoutes(protected)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Page introuvable",
			"error":   fmt.Sprintf("no route for %s %s", c.Method(), c.Path()),
		})
	})

	a.Fiber = app
	return a, nil
}

// Start launches the background consumers and the flow janitor. They stop when ctx is
// done or the broker closes.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Notifications.Start(); err != nil {
		return err
	}
	if _, ok := a.broker.(*rabbitmq.InProcess); ok {
		// Nothing else drains the in-process outbox.
		if _, err := a.broker.Consume(rabbitmq.QueueAuthMessages, provider.LogDelivery(a.logger.Named("outbox"))); err != nil {
			return fmt.Errorf("failed to consume auth messages: %w", err)
		}
	}
	go a.flowStore.Run(ctx, a.flowTTL/2)
	return nil
}

// Listen serves HTTP on addr.
func (a *App) Listen(addr string) error {
	a.logger.Info("starting server", zap.String("addr", addr))
	return a.Fiber.Listen(addr)
}

// Shutdown stops the HTTP server and detaches from the provider.
func (a *App) Shutdown() error {
	if a.unbind != nil {
		a.unbind()
	}
	return a.Fiber.Shutdown()
}

func newProvider(cfg *config.Config, db *gorm.DB, broker rabbitmq.Broker, logger *zap.Logger) (provider.Provider, error) {
	switch cfg.AuthProvider {
	case "http":
		return provider.NewHTTPProvider(cfg.AuthURL, cfg.AuthAPIKey, &http.Client{Timeout: 15 * time.Second}, logger.Named("provider")), nil
	case "local", "":
		return provider.NewLocalProvider(
			repositories.NewGORMUserRepository(db),
			repositories.NewGORMOTPRepository(db),
			provider.NewQueueMessenger(broker),
			provider.LocalConfig{
				JWTSecret:      cfg.JWTSecret,
				TokenTTL:       cfg.TokenTTL,
				OTPTTL:         cfg.OTPTTL,
				MaxOTPAttempts: cfg.OTPMaxAttempts,
			},
			logger.Named("provider"),
		), nil
	}
	return nil, fmt.Errorf("unsupported auth provider %q", cfg.AuthProvider)
}

func newPhotoStore(cfg *config.Config) (services.PhotoStore, error) {
	if cfg.PhotoStoreKind != "s3" {
		return services.NewMemoryPhotoStore(), nil
	}
	return services.NewS3PhotoStore(context.Background(), services.S3Config{
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		PresignTTL: cfg.S3PresignTTL,
	})
}
