package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/handlers"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/service"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Addr           string
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	GinMode        string

	// Pool backs the default PostgreSQL repository.
	Pool         *pgxpool.Pool
	QueryTimeout time.Duration

	// Repository, when set, is used instead of a pool-backed repository.
	Repository repository.SubscriberRepository
}

type Application struct {
	server   *http.Server
	config   *Config
	router   *gin.Engine
	repo     repository.SubscriberRepository
	registry *prometheus.Registry
}

func Build(config *Config) (*Application, error) {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	repo := config.Repository
	if repo == nil {
		if config.Pool == nil {
			return nil, errors.New("app: either Pool or Repository is required")
		}
		repo = repository.NewPostgresSubscriberRepository(config.Pool, config.QueryTimeout)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	subscriberService := service.NewSubscriberService(repo, config.Logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriberService, config.Logger, appMetrics)

	var otelOpts []otelgin.Option
	if config.TracerProvider != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(config.TracerProvider))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestID())
	router.Use(otelgin.Middleware(config.ServiceName, otelOpts...))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		config.Logger.WithTracing(c.Request.Context()).WithFields(map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request completed")
	})

	router.GET("/health_check", handlers.HealthCheck)
	router.POST("/subscriptions", subscriptionHandler.Subscribe)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		server:   server,
		config:   config,
		router:   router,
		repo:     repo,
		registry: registry,
	}, nil
}

func (app *Application) Run() error {
	app.config.Logger.Info("Starting server on " + app.config.Addr)
	if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.config.Logger.Info("Shutting down server...")
	return app.server.Shutdown(ctx)
}

func (app *Application) Repo() repository.SubscriberRepository {
	return app.repo
}

func (app *Application) Router() *gin.Engine {
	return app.router
}
