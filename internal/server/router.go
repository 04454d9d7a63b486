package server

import (
	"net/http"
	"time"

	"github.com/Kylemerian/real-time-web-chat/internal/auth"
	"github.com/Kylemerian/real-time-web-chat/internal/config"
	"github.com/Kylemerian/real-time-web-chat/internal/metrics"
	"github.com/Kylemerian/real-time-web-chat/internal/mw"
	"github.com/Kylemerian/real-time-web-chat/internal/registry"
	"github.com/Kylemerian/real-time-web-chat/internal/relay"
	"github.com/Kylemerian/real-time-web-chat/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化中间件、REST API 与 WebSocket 端点。
func SetupRouter(cfg config.Config, gdb *gorm.DB, h *Handler, reg *registry.Registry, rel *relay.Relay) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, gdb))
	authed.GET("/chats", h.ListChats)
	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats/:id/messages", h.History)
	authed.POST("/users/telegram", h.BindTelegram)

	r.GET("/ws", ws.Serve(cfg, gdb, reg, rel))

	return r
}
