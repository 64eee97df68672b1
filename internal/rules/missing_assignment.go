package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// RuleIDMissingAssignment 未分派规则ID
const RuleIDMissingAssignment = "missing-assignment"

// MissingAssignmentRule 非终态工单缺少作业人员时触发
//
// 高价值工单 (金额达到阈值) 升级为 CRITICAL。
type MissingAssignmentRule struct {
	highValueThreshold decimal.Decimal
}

// NewMissingAssignmentRule 创建未分派规则
func NewMissingAssignmentRule(highValueThreshold decimal.Decimal) *MissingAssignmentRule {
	return &MissingAssignmentRule{highValueThreshold: highValueThreshold}
}

// Name 规则ID
func (r *MissingAssignmentRule) Name() string {
	return RuleIDMissingAssignment
}

// Evaluate 评估单个工单
func (r *MissingAssignmentRule) Evaluate(job *model.JobSnapshot, _ *AuxData) *TriggerResult {
	if job.Status.IsTerminal() {
		return nil
	}
	if job.AssigneeID != "" {
		return nil
	}

	severity := model.SeverityHigh
	message := fmt.Sprintf("job %s has no assignee", job.JobID)
	if r.highValueThreshold.IsPositive() && job.JobValue.GreaterThanOrEqual(r.highValueThreshold) {
		severity = model.SeverityCritical
		message = fmt.Sprintf("high-value job %s (%s) has no assignee", job.JobID, job.JobValue.String())
	}

	return &TriggerResult{
		RuleID:   RuleIDMissingAssignment,
		RuleName: "Missing Assignment",
		Severity: severity,
		Message:  message,
		JobID:    job.JobID,
		Context: map[string]string{
			"status":    string(job.Status),
			"job_value": job.JobValue.String(),
		},
	}
}
