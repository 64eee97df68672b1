package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/poller"
)

// MonitorHandler 轮询控制与统计处理器
type MonitorHandler struct {
	poller *poller.Poller
	store  *alerts.Store
}

// NewMonitorHandler 创建监控处理器
func NewMonitorHandler(p *poller.Poller, store *alerts.Store) *MonitorHandler {
	return &MonitorHandler{
		poller: p,
		store:  store,
	}
}

// Status 查询轮询状态
// @Summary 轮询器运行状态
// @Router /api/v1/monitor/status [get]
func (h *MonitorHandler) Status(c *gin.Context) {
	Success(c, h.poller.Status())
}

// Trigger 手动触发一个轮询周期
// @Summary 立即执行一个周期，上一周期未结束时本次被跳过
// @Router /api/v1/monitor/trigger [post]
func (h *MonitorHandler) Trigger(c *gin.Context) {
	go func() {
		_ = h.poller.RunCycle(context.Background())
	}()
	Accepted(c, "cycle triggered")
}

// Stats 查询告警统计
// @Summary 告警统计 (级别/规则分布、去重缓存大小)
// @Router /api/v1/monitor/stats [get]
func (h *MonitorHandler) Stats(c *gin.Context) {
	Success(c, h.store.Statistics(c.Request.Context()))
}
