package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	chatservice "github.com/lk2023060901/st2u-assistant/internal/chat/service"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/redis"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	chatService *chatservice.ChatService,
	redisClient *redis.Client,
) *HTTPServer {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{
		SkipPaths:        []string{"/health"},
		SkipPathSuffixes: []string{"/events"},
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		health := gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		}
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx); err != nil {
				health["status"] = "degraded"
				health["redis"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, health)
				return
			}
			health["redis"] = "ok"
		}
		c.JSON(http.StatusOK, health)
	})

	// API routes
	api := router.Group("/api/v1")
	chatService.RegisterRoutes(api)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Server.Addr(),
			Handler:      router,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger: log,
	}
}

// Handler exposes the router for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
