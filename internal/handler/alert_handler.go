package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// AlertHandler 告警查询与生命周期处理器
type AlertHandler struct {
	store *alerts.Store
}

// NewAlertHandler 创建告警处理器
func NewAlertHandler(store *alerts.Store) *AlertHandler {
	return &AlertHandler{store: store}
}

// actorRequest 生命周期操作请求体
type actorRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// bulkRequest 批量生命周期操作请求体
type bulkRequest struct {
	AlertIDs []string `json:"alert_ids" binding:"required,min=1"`
	Actor    string   `json:"actor" binding:"required"`
}

// List 查询活跃告警
// @Summary 按优先级查询活跃告警
// @Param severity query string false "告警级别 (LOW/MEDIUM/HIGH/CRITICAL)"
// @Param acknowledged query bool false "按确认状态过滤"
// @Param limit query int false "返回条数上限"
// @Router /api/v1/alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	filter := &alerts.Filter{}

	if raw := c.Query("severity"); raw != "" {
		severity, ok := model.ParseSeverity(raw)
		if !ok {
			BadRequest(c, "invalid severity: "+raw)
			return
		}
		filter.Severity = &severity
	}
	if raw := c.Query("acknowledged"); raw != "" {
		acknowledged, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, "invalid acknowledged flag: "+raw)
			return
		}
		filter.Acknowledged = &acknowledged
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			BadRequest(c, "invalid limit: "+raw)
			return
		}
		filter.Limit = limit
	}

	Success(c, h.store.List(filter))
}

// History 查询最近解除的告警
// @Summary 查询告警历史
// @Param limit query int false "返回条数上限"
// @Router /api/v1/alerts/history [get]
func (h *AlertHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(c, "invalid limit: "+raw)
			return
		}
		limit = parsed
	}

	Success(c, h.store.History(limit))
}

// Acknowledge 确认告警
// @Summary 确认告警 (幂等)
// @Router /api/v1/alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	h.lifecycle(c, h.store.Acknowledge)
}

// Dismiss 屏蔽告警
// @Summary 屏蔽告警 (幂等)
// @Router /api/v1/alerts/{id}/dismiss [post]
func (h *AlertHandler) Dismiss(c *gin.Context) {
	h.lifecycle(c, h.store.Dismiss)
}

func (h *AlertHandler) lifecycle(c *gin.Context, op func(alertID, actor string) error) {
	alertID := c.Param("id")

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "actor is required")
		return
	}

	if err := op(alertID, req.Actor); err != nil {
		if errors.Is(err, alerts.ErrAlertNotFound) {
			NotFound(c, "alert not found: "+alertID)
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, nil)
}

// AcknowledgeBulk 批量确认告警
// @Summary 批量确认告警，返回逐条成功失败计数
// @Router /api/v1/alerts/acknowledge [post]
func (h *AlertHandler) AcknowledgeBulk(c *gin.Context) {
	h.bulkLifecycle(c, h.store.AcknowledgeBulk)
}

// DismissBulk 批量屏蔽告警
// @Summary 批量屏蔽告警，返回逐条成功失败计数
// @Router /api/v1/alerts/dismiss [post]
func (h *AlertHandler) DismissBulk(c *gin.Context) {
	h.bulkLifecycle(c, h.store.DismissBulk)
}

func (h *AlertHandler) bulkLifecycle(c *gin.Context, op func(alertIDs []string, actor string) *alerts.BulkResult) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "alert_ids and actor are required")
		return
	}

	Success(c, op(req.AlertIDs, req.Actor))
}
