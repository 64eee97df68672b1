package rules

import (
	"fmt"
	"time"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// RuleIDStalledStart 迟滞开工规则ID
const RuleIDStalledStart = "stalled-start"

// StalledStartRule 超过计划开始时间一定宽限仍未记录实际开始时间时触发
type StalledStartRule struct {
	grace   time.Duration
	nowFunc func() time.Time
}

// NewStalledStartRule 创建迟滞开工规则
func NewStalledStartRule(grace time.Duration) *StalledStartRule {
	return &StalledStartRule{
		grace:   grace,
		nowFunc: time.Now,
	}
}

// Name 规则ID
func (r *StalledStartRule) Name() string {
	return RuleIDStalledStart
}

// Evaluate 评估单个工单
func (r *StalledStartRule) Evaluate(job *model.JobSnapshot, _ *AuxData) *TriggerResult {
	if job.Status.IsTerminal() || job.HasStarted() {
		return nil
	}
	if job.ScheduledStartAt == 0 {
		// 计划开始时间缺失视为核验未知
		return nil
	}

	deadline := time.UnixMilli(job.ScheduledStartAt).Add(r.grace)
	now := r.nowFunc()
	if now.Before(deadline) {
		return nil
	}

	overdue := now.Sub(time.UnixMilli(job.ScheduledStartAt)).Round(time.Minute)
	return &TriggerResult{
		RuleID:   RuleIDStalledStart,
		RuleName: "Stalled Start",
		Severity: model.SeverityMedium,
		Message:  fmt.Sprintf("job %s has not started %s after its scheduled start", job.JobID, overdue),
		JobID:    job.JobID,
		Context: map[string]string{
			"status":             string(job.Status),
			"scheduled_start_at": time.UnixMilli(job.ScheduledStartAt).UTC().Format(time.RFC3339),
		},
	}
}
