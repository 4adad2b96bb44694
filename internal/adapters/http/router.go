package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/adapters/signal"
	"github.com/dkeye/Beacon/internal/config"
	"github.com/dkeye/Beacon/internal/core"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, rooms *core.RoomManager, signalCtl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("BeaconSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &RoomHandlers{Rooms: rooms}
	api := r.Group("/api")
	api.POST("/rooms", h.Create)
	api.GET("/rooms", h.List)
	api.DELETE("/rooms/:id", h.Delete)
	api.POST("/rooms/:id/join", h.Join)
	api.DELETE("/rooms/:id/users/:uid", h.Kick)
	api.POST("/rooms/:id/users/:uid/produce", h.StartProduce)
	api.DELETE("/rooms/:id/users/:uid/produce/:type", h.StopProduce)

	api.GET("/ws/signal", signalCtl.HandleSignal)

	return r
}
