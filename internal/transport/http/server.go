package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/casthub/streamdash/internal/auth"
	"github.com/casthub/streamdash/internal/config"
	"github.com/casthub/streamdash/internal/core"
	"github.com/casthub/streamdash/internal/store"
)

// NewServer builds the HTTP server: health check, auth API, and the
// realtime WebSocket endpoint.
//
// The WebSocket route is mounted on a plain mux in front of gin: the upgrade
// hijacks the connection after the 101 is written, and gin's response writer
// refuses the hijack once anything has been written.
func NewServer(registry *core.Registry, router *core.Router, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(LoggerMiddleware(logger), gin.Recovery())

	engine.GET("/health", healthHandler)

	api := NewAPIHandlers(authService, st, logger)
	engine.POST("/api/register", api.Register)
	engine.POST("/api/login", api.Login)

	protected := engine.Group("/api", AuthMiddleware(authService, logger))
	protected.GET("/me", api.Me)

	limiter := newRateLimiter(cfg.ConnectRateLimit)
	ws := NewWSHandler(registry, router, logger, cfg.SendBuffer, cfg.AuthTimeout, limiter)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", engine)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
