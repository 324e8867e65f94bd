package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	commonauth "team_server/server/common/auth"
	"team_server/server/common/infra/cache"
	"team_server/server/common/infra/db"
	"team_server/server/common/infra/mq"
	"team_server/server/realtime/api"
	"team_server/server/realtime/repository"
	"team_server/server/realtime/service"
)

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Hub        *service.Hub
	Publisher  *service.AMQPPublisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	redisClient := cache.NewClient(cfg.RedisAddr)
	if err := cache.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	var (
		mqConn    *amqp.Connection
		publisher *service.AMQPPublisher
	)
	if cfg.UseMQ {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("initialize rabbitmq: %w", err)
		}
		publisher, err = service.NewAMQPPublisher(mqConn)
		if err != nil {
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
	}

	repo := repository.NewDomainRepository(pool)
	presence := service.NewPresenceRegistry()

	hub := service.NewHub()
	hub.UseRedis(redisClient)
	if err := hub.StartRedisSubscriber(context.Background()); err != nil {
		return nil, fmt.Errorf("start hub subscriber: %w", err)
	}

	events := eventsOrNil(publisher)
	extractor := service.NewActionExtractor(service.NewDateParser())
	executor := service.NewActionExecutor(repo, extractor, events)
	gateway := service.NewMessageGateway(repo, service.NewIntentDetector(), executor, hub, events, cfg.SystemUserID)
	gateway.UseRedis(redisClient)

	calls := service.NewCallManager(repo, presence, hub, events)
	supervisor := service.NewConnectionSupervisor(presence, hub, gateway, hub)

	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	h := api.NewHandler(supervisor, calls, authSvc)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTPServer: httpServer,
		DB:         pool,
		Redis:      redisClient,
		MQConn:     mqConn,
		Hub:        hub,
		Publisher:  publisher,
	}, nil
}

// eventsOrNil keeps a typed-nil *AMQPPublisher from masquerading as a
// non-nil interface value inside the services.
func eventsOrNil(publisher *service.AMQPPublisher) service.DomainEvents {
	if publisher == nil {
		return nil
	}
	return publisher
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Hub.StopRedisSubscriber()
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
