package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/handler"
	"notification-backend/internal/realtime"
	"notification-backend/internal/shared/middleware"
	"notification-backend/internal/shared/response"
	"notification-backend/pkg/container"
)

func newRouter(cfg *config.Config, c *container.Container) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.CORS(),
	)

	notifications := handler.NewNotificationHandler(c.DispatchService)
	templates := handler.NewTemplateHandler(c.TemplateService)
	preferences := handler.NewPreferenceHandler(c.PreferenceService)
	analytics := handler.NewAnalyticsHandler(c.AnalyticsService)
	deadLetters := handler.NewDeadLetterHandler(c.DeadLetterService)
	socket := realtime.NewHandler(c.Hub, c.DispatchService)

	router.GET("/health", func(ctx *gin.Context) {
		if err := c.DB.HealthCheck(ctx.Request.Context()); err != nil {
			response.ServiceUnavailable(ctx, "database unavailable")
			return
		}
		response.Success(ctx, http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.App.Version,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		v1.POST("/notifications", notifications.Send)
		v1.GET("/notifications", notifications.List)
		v1.GET("/notifications/unread-count", notifications.UnreadCount)
		v1.POST("/notifications/read-all", notifications.MarkAllRead)
		v1.GET("/notifications/:id", notifications.GetStatus)
		v1.POST("/notifications/:id/read", notifications.MarkRead)
		v1.POST("/notifications/:id/cancel", notifications.Cancel)
		v1.GET("/notifications/ws", socket.Serve)

		v1.GET("/preferences", preferences.Get)
		v1.PUT("/preferences", preferences.Update)
		v1.POST("/preferences/reset", preferences.Reset)

		v1.GET("/templates", templates.List)
		v1.GET("/templates/:name", templates.Get)

		admin := v1.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("/notifications/bulk", notifications.SendBulk)

			admin.POST("/templates", templates.Create)
			admin.PUT("/templates/:name", templates.Update)
			admin.DELETE("/templates/:name", templates.Delete)
			admin.GET("/templates/:name/versions", templates.ListVersions)
			admin.POST("/templates/:name/preview", templates.Preview)

			admin.GET("/preferences/:userId", preferences.Get)
			admin.PUT("/preferences/:userId", preferences.Update)

			admin.GET("/analytics/delivery-rate", analytics.DeliveryRate)
			admin.GET("/analytics/engagement", analytics.Engagement)
			admin.GET("/analytics/channels", analytics.ChannelPerformance)
			admin.GET("/analytics/failures", analytics.Failures)

			admin.GET("/dead-letters", deadLetters.List)
			admin.GET("/dead-letters/:id", deadLetters.Get)
			admin.DELETE("/dead-letters/:id", deadLetters.Discard)
		}
	}

	return router
}
