package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/config"
	"github.com/emilythestrangee/reddit-clone/bff/internal/database"
	"github.com/emilythestrangee/reddit-clone/bff/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/bff/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

type Server struct {
	cfg     *config.Config
	redis   database.Service // nil with the memory backend
	viewers *viewer.Registry
	handler *handlers.Handler
}

// New wires the handlers to the viewer registry.
func New(cfg *config.Config, viewers *viewer.Registry, redis database.Service) *Server {
	return &Server{
		cfg:     cfg,
		redis:   redis,
		viewers: viewers,
		handler: handlers.NewHandler(viewers, cfg.API.FeedPages),
	}
}

// NewServer creates and configures a new server
func NewServer(cfg *config.Config, viewers *viewer.Registry, redis database.Service) *http.Server {
	s := New(cfg, viewers, redis)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slog.Info("server configured", "port", cfg.Server.Port, "cache", cfg.Cache.Backend, "api", cfg.API.BaseURL)
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Session-Error"},
		AllowCredentials: !allowsAll(s.cfg.Server.AllowOrigins),
		MaxAge:           12 * 3600,
	}))

	// Health check endpoint
	r.GET("/health", s.health)

	// Every route sees the session when there is one; votes require it.
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware([]byte(s.cfg.JWT.Secret)))
	{
		api.GET("/me", s.handler.Auth.GetMe)

		// Post routes
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)
		api.POST("/posts/:id/:kind", s.handler.Post.VotePost)

		// Comment routes
		api.GET("/posts/:id/comments", s.handler.Comment.GetComments)
		api.POST("/posts/:id/comments/:commentId/:kind", s.handler.Comment.VoteComment)

		// User routes
		api.GET("/users/:id/posts", s.handler.User.GetUserPosts)

		api.GET("/votes/:id/pending", s.handler.Vote.GetPending)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "viewers": s.viewers.Len()}
	if s.redis == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	stats := s.redis.Health()
	body["redis"] = stats
	if stats["status"] != "up" {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func allowsAll(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
