package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/shipnest/apiserver/config"
	"github.com/shipnest/apiserver/internal/auth"
	"github.com/shipnest/apiserver/internal/db"
	"github.com/shipnest/apiserver/internal/events"
	"github.com/shipnest/apiserver/internal/handlers"
	"github.com/shipnest/apiserver/internal/logging"
	"github.com/shipnest/apiserver/internal/mq"
	"github.com/shipnest/apiserver/internal/services"
	"github.com/shipnest/apiserver/internal/storage"
	"github.com/shipnest/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const rateLimitPrefix = "ratelimit"

// Dependencies are the collaborators the router is built from. Events,
// Images and Limiter are optional.
type Dependencies struct {
	Users     services.UserRepository
	Addresses services.AddressRepository
	Events    events.Publisher
	Images    *storage.Storage
	Limiter   *handlers.RateLimiter
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	closers    []func(context.Context) error
}

// NewRouter builds the HTTP routes over deps.
func NewRouter(cfg config.Config, deps Dependencies, logger *zap.Logger) (*chi.Mux, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)

	userService := services.NewUserService(deps.Users, hasher, deps.Events, deps.Images, logger)
	addressService := services.NewAddressService(deps.Addresses, deps.Events)

	authMiddleware := handlers.RequireAuth(auth.NewResolver(tokens, deps.Users), logger)
	userHandler := handlers.NewUserHandler(userService, tokens, logger)
	addressHandler := handlers.NewAddressHandler(addressService, logger)

	var limit func(http.Handler) http.Handler
	if deps.Limiter != nil {
		limit = deps.Limiter.Middleware
	}

	router := chi.NewRouter()
	router.Use(
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		handlers.CapturePeer,
		middleware.RealIP,
		logging.Middleware(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler, authMiddleware, limit)
		})
		r.Route("/addresses", func(r chi.Router) {
			handlers.AddressRouter(r, addressHandler, authMiddleware)
		})
	})

	return router, nil
}

// New connects every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{logger: logger}
	deps, err := s.connect(ctx, cfg)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	router, err := NewRouter(cfg, deps, logger)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) connect(ctx context.Context, cfg config.Config) (Dependencies, error) {
	var deps Dependencies

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return deps, fmt.Errorf("open postgres: %w", err)
		}
		s.onClose(func(context.Context) error { return conn.Close() })
		deps.Users, deps.Addresses = postgresRepositories(conn)
	default:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return deps, fmt.Errorf("open mongo: %w", err)
		}
		s.onClose(client.Disconnect)
		users, addresses, err := mongoRepositories(ctx, database)
		if err != nil {
			return deps, err
		}
		deps.Users, deps.Addresses = users, addresses
	}

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return deps, fmt.Errorf("open storage: %w", err)
	}
	deps.Images = images

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return deps, fmt.Errorf("open message queue: %w", err)
	}
	if queue != nil {
		s.onClose(func(context.Context) error { return queue.Close() })
		publisher := events.NewBrokerPublisher(queue, cfg.MQ.Channel, s.logger)
		s.onClose(publisher.Close)
		deps.Events = publisher
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.onClose(func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis unreachable, rate limiting fails open", zap.Error(err))
		}
		deps.Limiter = handlers.NewRateLimiter(
			handlers.NewRedisCounter(client),
			rateLimitPrefix,
			cfg.Redis.RateLimit,
			cfg.Redis.RateWindow,
			s.logger,
		)
	}

	return deps, nil
}

func postgresRepositories(conn *sql.DB) (*store.UserRepository, *store.AddressRepository) {
	return store.NewUserRepository(conn), store.NewAddressRepository(conn)
}

func mongoRepositories(ctx context.Context, database *mongo.Database) (*store.MongoUserRepository, *store.MongoAddressRepository, error) {
	users := store.NewMongoUserRepository(database)
	if err := users.EnsureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure user indexes: %w", err)
	}
	addresses := store.NewMongoAddressRepository(database)
	if err := addresses.EnsureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure address indexes: %w", err)
	}
	return users, addresses, nil
}

func (s *Server) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and releases backend connections in
// reverse order of acquisition.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}
