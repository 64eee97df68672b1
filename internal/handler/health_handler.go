package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fieldpulse/dispatch-monitor/internal/poller"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db     *gorm.DB // 可为 nil (未启用持久化)
	poller *poller.Poller
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *gorm.DB, p *poller.Poller) *HealthHandler {
	return &HealthHandler{
		db:     db,
		poller: p,
	}
}

// Live 存活探针
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 就绪探针，数据库不可用时返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	status := h.poller.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"is_running":    status.IsRunning,
		"last_cycle_at": status.LastCycleAt,
	})
}
