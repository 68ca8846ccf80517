package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	adminadapters "reyu/internal/admin/adapters"
	adminhandler "reyu/internal/admin/handler"
	adminservice "reyu/internal/admin/service"
	"reyu/internal/events"
	kafkaevents "reyu/internal/events/kafka"
	rabbitevents "reyu/internal/events/rabbitmq"
	httpapi "reyu/internal/http"
	identityhandler "reyu/internal/identity/handler"
	identityservice "reyu/internal/identity/service"
	identitystore "reyu/internal/identity/store"
	jwttoken "reyu/internal/jwt_token"
	markethandler "reyu/internal/market/handler"
	marketmetrics "reyu/internal/market/metrics"
	marketservice "reyu/internal/market/service"
	marketstore "reyu/internal/market/store"
	notificationhandler "reyu/internal/notification/handler"
	notificationservice "reyu/internal/notification/service"
	notificationstore "reyu/internal/notification/store"
	"reyu/internal/payment"
	"reyu/internal/platform/config"
	"reyu/internal/platform/kafka"
	"reyu/internal/platform/postgres"
	"reyu/internal/platform/rabbitmq"
	redisclient "reyu/internal/platform/redis"
	ratelimitmw "reyu/internal/ratelimit/middleware"
	ratelimitmodels "reyu/internal/ratelimit/models"
	ratelimitstore "reyu/internal/ratelimit/store"
	"reyu/pkg/platform/circuit"
	"reyu/pkg/platform/middleware/auth"
)

const notificationConsumer = "reyu-notifications"

type runner interface {
	Run(ctx context.Context) error
}

// userBackend is the user store behind the identity cache. The admin
// directory queries read it directly so listings are never served stale.
type userBackend interface {
	identitystore.Backend
	adminadapters.IdentityUserStore
}

// app holds the long-lived components run() starts and tears down.
type app struct {
	validator    auth.JWTValidator
	rateLimit    func(http.Handler) http.Handler
	modules      []httpapi.Module
	healthChecks map[string]httpapi.HealthCheck
	sweeper      *marketservice.Sweeper
	consumer     runner
	closers      []func() error
	log          *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close resource", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{healthChecks: make(map[string]httpapi.HealthCheck), log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var db *sql.DB
	if cfg.Storage.Driver == config.StoragePostgres {
		db, err = postgres.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		a.healthChecks["postgres"] = db.PingContext
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		a.healthChecks["redis"] = rdb.Health
	}

	var notifStore notificationservice.Store = notificationstore.NewInMemory()
	if db != nil {
		notifStore = notificationstore.NewPostgres(db)
	}
	notifications := notificationservice.New(notifStore, notificationservice.WithLogger(log))

	publisher, err := a.events(ctx, cfg, notifications)
	if err != nil {
		return nil, err
	}

	var backend userBackend = identitystore.NewInMemory()
	if db != nil {
		backend = identitystore.NewPostgres(db, cfg.Storage.TxTimeout)
	}
	users, err := identitystore.NewCached(backend, cfg.Market.IdentityCacheSize, cfg.Market.IdentityCacheTTL)
	if err != nil {
		return nil, err
	}
	identity := identityservice.New(users,
		identityservice.WithLogger(log),
		identityservice.WithPublisher(publisher),
	)

	stores, tx := marketStores(db, cfg.Storage)
	if rdb != nil {
		stores.Views = marketstore.NewViewRedis(rdb.Client)
	}
	market := marketservice.New(stores, tx, identity,
		marketservice.WithLogger(log),
		marketservice.WithPublisher(publisher),
		marketservice.WithPayments(paymentGateway(cfg.Payment, log)),
		marketservice.WithMetrics(marketmetrics.New()),
		marketservice.WithBidTTL(cfg.Market.DefaultBidTTL),
		marketservice.WithPaymentTimeout(cfg.Market.PaymentTimeout),
	)
	a.sweeper = marketservice.NewSweeper(market, cfg.Market.SweepInterval, log)

	adminSvc := adminservice.New(
		adminadapters.NewUserStoreAdapter(backend),
		adminadapters.NewDealStoreAdapter(stores.Deals, stores.Listings, stores.Settlements),
		adminservice.WithLogger(log),
	)

	if cfg.RateLimit.Enabled {
		var limits ratelimitmw.Store = ratelimitstore.NewSlidingWindow()
		if rdb != nil {
			limits = ratelimitstore.NewFixedWindow(rdb.Client)
		}
		policy := ratelimitmodels.Policy{Limit: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}
		a.rateLimit = ratelimitmw.New(limits, policy, log).PerUser
	}

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	a.validator = jwttoken.NewJWTServiceAdapter(jwt)
	a.modules = []httpapi.Module{
		identityhandler.New(identity, log),
		markethandler.New(market, log),
		notificationhandler.New(notifications, log),
		adminhandler.New(adminSvc, log),
	}
	return a, nil
}

// events builds the publisher the services emit to and the consumer that
// feeds committed events to the notification service.
func (a *app) events(ctx context.Context, cfg *config.Config, handler events.Handler) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case config.EventsRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		queue, err := conn.BindQueue(notificationConsumer, "#", cfg.Events.Exchange)
		if err != nil {
			return nil, err
		}
		consumeCh, err := conn.Conn.Channel()
		if err != nil {
			return nil, err
		}
		a.consumer = rabbitevents.NewConsumer(consumeCh, queue.Name, handler, a.log)
		return rabbitevents.NewPublisher(conn.Channel, cfg.Events.Exchange), nil

	case config.EventsKafka:
		producer, err := kafka.NewProducer(ctx, cfg.Events)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { producer.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, producer, cfg.Events); err != nil {
			return nil, err
		}
		client, err := kafka.NewConsumer(cfg.Events, notificationConsumer)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		a.consumer = kafkaevents.NewConsumer(client, handler, a.log)
		return kafkaevents.NewPublisher(producer, a.log), nil

	default:
		p := events.NewChannelPublisher(cfg.Events.BufferSize, a.log)
		a.consumer = events.NewWorker(handler, p.Inbox(), a.log)
		return p, nil
	}
}

func marketStores(db *sql.DB, cfg config.Storage) (marketservice.Stores, marketservice.Transactor) {
	if db == nil {
		return marketservice.Stores{
			Diamonds:    marketstore.NewDiamondMemory(),
			Listings:    marketstore.NewListingMemory(),
			Bids:        marketstore.NewBidMemory(),
			Deals:       marketstore.NewDealMemory(),
			Settlements: marketstore.NewSettlementMemory(),
			Ratings:     marketstore.NewRatingMemory(),
			Views:       marketstore.NewViewMemory(),
		}, marketstore.NewShardedTx(cfg.TxTimeout)
	}
	return marketservice.Stores{
		Diamonds:    marketstore.NewDiamondPostgres(db),
		Listings:    marketstore.NewListingPostgres(db),
		Bids:        marketstore.NewBidPostgres(db),
		Deals:       marketstore.NewDealPostgres(db),
		Settlements: marketstore.NewSettlementPostgres(db),
		Ratings:     marketstore.NewRatingPostgres(db),
		Views:       marketstore.NewViewMemory(),
	}, marketstore.NewPostgresTx(db, cfg.TxTimeout)
}

func paymentGateway(cfg config.Payment, log *slog.Logger) marketservice.PaymentGateway {
	if cfg.Driver != config.PaymentHTTP {
		return payment.NewLedger()
	}
	return payment.NewHTTPGateway(cfg.GatewayURL, cfg.Timeout,
		payment.WithLogger(log),
		payment.WithBreaker(circuit.New("payment-gateway", circuit.WithCooldown(cfg.BreakerCooldown))),
	)
}
