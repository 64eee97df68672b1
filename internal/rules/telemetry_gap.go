package rules

import (
	"fmt"
	"time"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// RuleIDTelemetryGap 遥测中断规则ID
const RuleIDTelemetryGap = "telemetry-gap"

// TelemetryGapRule 作业中工单对应车辆的定位上报长时间静默时触发
//
// 没有任何遥测记录视为数据缺失而非中断，不触发。
type TelemetryGapRule struct {
	staleAfter time.Duration
	nowFunc    func() time.Time
}

// NewTelemetryGapRule 创建遥测中断规则
func NewTelemetryGapRule(staleAfter time.Duration) *TelemetryGapRule {
	return &TelemetryGapRule{
		staleAfter: staleAfter,
		nowFunc:    time.Now,
	}
}

// Name 规则ID
func (r *TelemetryGapRule) Name() string {
	return RuleIDTelemetryGap
}

// Evaluate 评估单个工单
func (r *TelemetryGapRule) Evaluate(job *model.JobSnapshot, aux *AuxData) *TriggerResult {
	if job.Status != model.JobStatusInProgress || job.AssigneeID == "" {
		return nil
	}

	fix := aux.TelemetryFor(job.AssigneeID)
	if fix == nil {
		return nil
	}

	age := r.nowFunc().Sub(time.UnixMilli(fix.RecordedAt))
	if age < r.staleAfter {
		return nil
	}

	return &TriggerResult{
		RuleID:   RuleIDTelemetryGap,
		RuleName: "Telemetry Gap",
		Severity: model.SeverityLow,
		Message:  fmt.Sprintf("no telemetry from assignee %s for %s on job %s", job.AssigneeID, age.Round(time.Minute), job.JobID),
		JobID:    job.JobID,
		Context: map[string]string{
			"assignee_id": job.AssigneeID,
			"last_fix_at": time.UnixMilli(fix.RecordedAt).UTC().Format(time.RFC3339),
		},
	}
}
