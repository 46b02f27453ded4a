package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/token-ledger/internal/ratelimit"
	"github.com/ErlanBelekov/token-ledger/internal/transport/http/handler"
	"github.com/ErlanBelekov/token-ledger/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type RouterConfig struct {
	// JWTKey enables bearer auth on every token route when non-empty.
	JWTKey []byte
	// Limiter throttles token routes per caller when non-nil.
	Limiter *ratelimit.Store
}

func NewRouter(logger *slog.Logger, tokenHandler *handler.TokenHandler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		// request ids come from middleware.RequestID via the log context
		WithRequestID:    false,
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(middleware.Metrics())

	var chain []gin.HandlerFunc
	if len(cfg.JWTKey) > 0 {
		chain = append(chain, middleware.Auth(cfg.JWTKey))
	}
	if cfg.Limiter != nil {
		chain = append(chain, middleware.RateLimit(cfg.Limiter))
	}

	api := r.Group("", chain...)
	api.POST("/tokens", tokenHandler.Create)
	api.POST("/tokens/use", tokenHandler.Use)
	api.GET("/users/:user_id/tokens/:token_id", tokenHandler.Get)

	return r
}
