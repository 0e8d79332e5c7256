package consumers

import (
	"context"
	"fmt"

	"github.com/nats-io/stan.go"
	"github.com/redis/go-redis/v9"

	"ticketpay/internal/cache"
	"ticketpay/internal/config"
	"ticketpay/internal/database"
	"ticketpay/internal/external"
	"ticketpay/internal/logger"
	"ticketpay/internal/messaging"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/search"
	"ticketpay/internal/service"
	"ticketpay/internal/vault"
)

// ConsumerService runs the NATS subscribers next to the background jobs.
type ConsumerService struct {
	cfg      *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	redis    *redis.Client
	services *service.Services
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	cs := &ConsumerService{cfg: cfg, db: db, nats: natsClient}

	v, err := vault.NewFromKey(cfg.Wallet.EncryptionKey)
	if err != nil {
		log.Warn("Wallet vault unavailable, cashback cannot be funded", "error", err)
	}

	var rateCache external.RateStore
	if cfg.Redis.Enabled {
		if cs.redis, err = cache.NewClient(cfg.Redis); err != nil {
			log.Warn("Redis unavailable, exchange rates will not be cached", "error", err)
		} else {
			rateCache = cache.NewRateCache(cs.redis)
		}
	}

	var (
		indexer   service.TicketIndexer
		reindexer TicketIndexer
	)
	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			log.Warn("Elasticsearch unavailable, tickets will not be indexed", "error", err)
		} else {
			indexer, reindexer = es, es
		}
	}

	var publisher service.Publisher
	if natsClient.Connected() {
		publisher = natsClient
	}

	store := repository.NewPostgresStore(db)
	cs.services = service.NewServices(service.Deps{
		Store:     store,
		Vault:     v,
		Chain:     external.NewChainClient(cfg.Chain),
		Rates:     external.NewRateClient(cfg.Rates, rateCache),
		Publisher: publisher,
		Indexer:   indexer,
		Monitor:   metrics.NewMonitor(),
		Options:   service.OptionsFromConfig(cfg),
	})
	cs.handlers = NewHandlers(cs.services.Cashback, store.Tickets(), reindexer, cfg.Jobs.CashbackAutoFund)

	return cs, nil
}

// Services exposes the wired services to the background jobs.
func (cs *ConsumerService) Services() *service.Services {
	return cs.services
}

func (cs *ConsumerService) Start() error {
	log := logger.Get()
	if !cs.nats.Connected() {
		log.Warn("NATS disabled, event consumers are not started")
		return nil
	}
	log.Info("Starting NATS consumers...")

	queue := cs.cfg.Jobs.ConsumerQueueGroup
	subscriptions := []struct {
		subject string
		handler stan.MsgHandler
	}{
		{models.EventCashbackRecorded, cs.handlers.HandleCashbackRecorded},
		{models.EventTicketIssued, cs.handlers.HandleTicketIssued},
		{models.EventPaymentCompleted, cs.handlers.HandlePaymentCompleted},
	}
	for _, s := range subscriptions {
		sub, err := cs.nats.SubscribeQueue(s.subject, queue, s.handler)
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	log.Info("All consumers started successfully", "queue", queue)
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	log := logger.WithContext(ctx)
	log.Info("Shutting down consumer service...")

	// Close keeps the durable queue position; Unsubscribe would drop it.
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			log.Error("Error closing subscription", "error", err)
		}
	}

	if err := cs.nats.Close(); err != nil {
		log.Error("Error closing NATS connection", "error", err)
	}
	if cs.redis != nil {
		if err := cs.redis.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
