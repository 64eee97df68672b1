// Package router 注册 HTTP 路由
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldpulse/dispatch-monitor/internal/handler"
)

// Handlers 所有处理器
type Handlers struct {
	Alert   *handler.AlertHandler
	Monitor *handler.MonitorHandler
	Health  *handler.HealthHandler
}

// SetupRouter 设置路由
func SetupRouter(r *gin.Engine, h *Handlers) {
	// 健康检查与指标
	r.GET("/health/live", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := r.Group("/api/v1")
	{
		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.Alert.List)
			alerts.GET("/history", h.Alert.History)
			alerts.POST("/acknowledge", h.Alert.AcknowledgeBulk)
			alerts.POST("/dismiss", h.Alert.DismissBulk)
			alerts.POST("/:id/acknowledge", h.Alert.Acknowledge)
			alerts.POST("/:id/dismiss", h.Alert.Dismiss)
		}

		monitor := v1.Group("/monitor")
		{
			monitor.GET("/status", h.Monitor.Status)
			monitor.POST("/trigger", h.Monitor.Trigger)
			monitor.GET("/stats", h.Monitor.Stats)
		}
	}
}
