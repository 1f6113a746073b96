package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"user-directory/internal/config"
	"user-directory/internal/db"
	"user-directory/internal/models"
	"user-directory/internal/redis"
	"user-directory/internal/registration"
	"user-directory/internal/security"
)

// Registrar is the registration core as the transport layer sees it.
type Registrar interface {
	Register(ctx context.Context, in *registration.Input) (*models.Account, error)
}

// AccountReader is the read side used by the public lookup endpoint.
type AccountReader interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
}

type Server struct {
	log       *slog.Logger
	db        *db.DB
	redis     *redis.Client
	cfg       config.Config
	router    *gin.Engine
	registrar Registrar
	accounts  AccountReader
	fallback  *security.LimiterStore
}

func NewServer(log *slog.Logger, dbConn *db.DB, redisClient *redis.Client, cfg config.Config, registrar Registrar, accounts AccountReader) *Server {
	s := &Server{
		log:       log,
		db:        dbConn,
		redis:     redisClient,
		cfg:       cfg,
		router:    gin.New(),
		registrar: registrar,
		accounts:  accounts,
		fallback:  security.NewLimiterStore(rate.Every(time.Second), 10, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/register", s.register)
		v1.GET("/users/:user_id", s.getUser)
		v1.GET("/health", s.health)
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
