package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/config"
	"github.com/loramulaku/LABcourse-sub002/internal/db"
	"github.com/loramulaku/LABcourse-sub002/internal/events"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/payment/midtrans"
	redisclient "github.com/loramulaku/LABcourse-sub002/internal/redis"
	"github.com/loramulaku/LABcourse-sub002/internal/store/pgstore"
)

// Infra holds the external connections of a running process.
type Infra struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Store     *pgstore.Store
	Locker    redisclient.Locker
	Publisher events.Publisher
	Gateway   payment.Gateway

	amqpConn  *amqp.Connection
	publisher *events.AMQPPublisher
	log       *zap.Logger
}

// Connect opens Postgres and Redis, and RabbitMQ and Midtrans when configured.
func Connect(ctx context.Context, cfg config.Config, log *zap.Logger) (*Infra, error) {
	inf := &Infra{log: log, Publisher: events.Nop{}, Gateway: payment.DisabledGateway{}}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		return nil, err
	}
	inf.Pool = pool
	inf.Store = pgstore.New(pool)
	log.Info("connected to postgres")

	if cfg.ApplySchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			inf.Close()
			return nil, err
		}
		log.Info("schema applied")
	}

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		inf.Close()
		return nil, err
	}
	inf.Redis = rdb
	inf.Locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, log.Named("lock"))
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.amqpConn = conn
		pub, err := events.NewAMQPPublisher(conn, cfg.EventsExchange, log.Named("events"))
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.publisher = pub
		inf.Publisher = pub
		log.Info("publishing events", zap.String("exchange", cfg.EventsExchange))
	}

	if cfg.MidtransServerKey != "" {
		gw, err := midtrans.NewGateway(cfg.MidtransServerKey, cfg.MidtransEnv, log.Named("midtrans"))
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("midtrans gateway: %w", err)
		}
		inf.Gateway = gw
		log.Info("midtrans gateway enabled", zap.String("env", cfg.MidtransEnv))
	}

	return inf, nil
}

func (i *Infra) Deps() Deps {
	return Deps{
		Store:     i.Store,
		Locker:    i.Locker,
		Publisher: i.Publisher,
		Gateway:   i.Gateway,
		Log:       i.log,
	}
}

func (i *Infra) Close() {
	if i.publisher != nil {
		if err := i.publisher.Close(); err != nil {
			i.log.Warn("error closing event channel", zap.Error(err))
		}
	}
	if i.amqpConn != nil {
		if err := i.amqpConn.Close(); err != nil {
			i.log.Warn("error closing rabbitmq", zap.Error(err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.log.Warn("error closing redis", zap.Error(err))
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}
