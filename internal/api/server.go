package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ticketpay/internal/cache"
	"ticketpay/internal/config"
	"ticketpay/internal/database"
	"ticketpay/internal/external"
	"ticketpay/internal/handlers"
	"ticketpay/internal/logger"
	"ticketpay/internal/messaging"
	"ticketpay/internal/metrics"
	"ticketpay/internal/middleware"
	"ticketpay/internal/repository"
	"ticketpay/internal/search"
	"ticketpay/internal/service"
	"ticketpay/internal/vault"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	redis    *redis.Client
	search   *search.ElasticsearchClient
	store    *repository.PostgresStore
	services *service.Services
	monitor  *metrics.Monitor
}

// NewServer создает новый экземпляр сервера
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Server{
		config:  cfg,
		db:      db,
		store:   repository.NewPostgresStore(db),
		monitor: metrics.NewMonitor(),
	}

	// The API still serves checkout and reads without a key; wallet operations fail with 503.
	v, err := vault.NewFromKey(cfg.Wallet.EncryptionKey)
	if err != nil {
		log.Warn("Wallet vault unavailable, wallet operations are disabled", "error", err)
	}

	s.nats, err = messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Warn("NATS unavailable, domain events will not be published", "error", err)
	}
	var publisher service.Publisher
	if s.nats != nil && s.nats.Connected() {
		publisher = s.nats
	}

	var rateCache external.RateStore
	if cfg.Redis.Enabled {
		s.redis, err = cache.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, exchange rates will not be cached", "error", err)
		} else {
			rateCache = cache.NewRateCache(s.redis)
		}
	}

	var (
		indexer  service.TicketIndexer
		searcher handlers.TicketSearcher
	)
	if cfg.Elasticsearch.Enabled {
		s.search, err = search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			log.Warn("Elasticsearch unavailable, ticket search falls back to the database", "error", err)
		} else {
			indexer, searcher = s.search, s.search
		}
	}

	s.services = service.NewServices(service.Deps{
		Store:     s.store,
		Vault:     v,
		Chain:     external.NewChainClient(cfg.Chain),
		Rates:     external.NewRateClient(cfg.Rates, rateCache),
		Publisher: publisher,
		Indexer:   indexer,
		Monitor:   s.monitor,
		Options:   service.OptionsFromConfig(cfg),
	})

	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.Logger(s.monitor))

	s.setupRoutes(handlers.NewHandlers(s.services, searcher))

	return s, nil
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes(h *handlers.Handlers) {
	handlers.RegisterRoutes(s.router.Group("/api"), h,
		middleware.OrganizerAuth(s.store.Organizers()),
		middleware.WebhookSecret(s.config.Webhook.Secret))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	hc := s.db.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if hc.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   hc.Status,
		"service":  "ticketpay-api",
		"database": hc,
		"nats":     s.nats != nil && s.nats.Connected(),
	})
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// HTTPServer wraps the router with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           http.TimeoutHandler(s.router, s.config.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Cleanup закрывает соединения
func (s *Server) Cleanup(ctx context.Context) error {
	log := logger.WithContext(ctx)

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
