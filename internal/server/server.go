package server

import (
	"github.com/gin-gonic/gin"
	"github.com/pagebuilder/api-server/internal/auth"
	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/pages"
	"github.com/pagebuilder/api-server/internal/ratelimit"
	"github.com/pagebuilder/api-server/internal/store"
	"github.com/pagebuilder/api-server/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server wires the HTTP surface to the key store, rate limiter, bulk
// creation service and webhook dispatcher. All components are constructed
// once here and injected; nothing is reached through globals.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	keys       *store.KeyStore
	activity   *store.ActivityStore
	validator  *auth.Validator
	limiter    ratelimit.Limiter
	service    *pages.Service
	dispatcher *webhook.Dispatcher
}

// New creates a new server instance
func New(cfg *config.Config, logger *zap.Logger, db *gorm.DB) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: gin.New(),
	}

	s.keys = store.NewKeyStore(db)
	s.activity = store.NewActivityStore(db)
	s.validator = auth.NewValidator(s.keys, logger)
	s.limiter = newLimiter(cfg)
	s.dispatcher = webhook.NewDispatcher(cfg.Webhook, logger)

	pageStore := store.NewPageStore(db, cfg.Server.BaseURL)
	s.service = pages.NewService(pageStore, s.activity, s.dispatcher, logger, cfg.Webhook.Async)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		return ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Window)
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Window)
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggerMiddleware())

	if s.cfg.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})
	s.router.GET("/health", s.healthCheck)

	// Public API - gated by API key and rate limit
	api := s.router.Group("/pagebuilder/v1")
	api.Use(s.apiKeyAuthMiddleware())
	{
		api.POST("/create-pages", s.createPages)
	}

	// Admin API (JSON only; there is no embedded UI)
	admin := s.router.Group("/admin")
	{
		admin.POST("/login", s.adminLogin)

		authed := admin.Group("/")
		authed.Use(s.adminAuthMiddleware())
		{
			authed.GET("/keys", s.listKeys)
			authed.POST("/keys", s.generateKey)
			authed.PATCH("/keys/:id/revoke", s.revokeKey)
			authed.DELETE("/keys/:id", s.deleteKey)
			authed.GET("/keys/:id/rate-limit", s.rateLimitStatus)
			authed.POST("/keys/:id/rate-limit/reset", s.rateLimitReset)

			authed.GET("/activity", s.listActivity)
			authed.GET("/pages", s.listCreatedPages)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
