package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crowdpledge/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	profileHandler *handler.ProfileHandler,
	projectHandler *handler.ProjectHandler,
	intentionHandler *handler.IntentionHandler,
	statsHandler *handler.StatsHandler,
	notificationHandler *handler.NotificationHandler,
	adminHandler *handler.AdminHandler,
	jwtSecret string,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(RecoveryMiddleware(logger), TraceMiddleware(), MetricsMiddleware())

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)
	r.GET("/projects", projectHandler.List)
	r.GET("/projects/:id", projectHandler.Get)
	r.GET("/projects/:id/stats", statsHandler.Get)
	r.GET("/ws/projects/:id/stats", statsHandler.Live)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/me", profileHandler.GetMe)
		auth.PUT("/me", profileHandler.UpdateMe)
		auth.GET("/users/:id", profileHandler.GetPublicProfile)
		auth.POST("/projects", projectHandler.Create)
		auth.PUT("/projects/:id/intention", intentionHandler.Record)
		auth.GET("/projects/:id/intention", intentionHandler.GetMine)
		auth.GET("/ws/projects/:id/intention", intentionHandler.LiveMine)
		auth.GET("/projects/:id/intentions", intentionHandler.ListUsers)
		auth.GET("/notifications", notificationHandler.List)
		auth.POST("/admin/outbox/replay", adminHandler.ReplayOutboxEvent)
		auth.POST("/admin/outbox/replay-failed", adminHandler.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
