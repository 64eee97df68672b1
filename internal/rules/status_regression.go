package rules

import (
	"fmt"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// RuleIDStatusRegression 状态回退规则ID
const RuleIDStatusRegression = "status-regression"

// StatusRegressionRule 工单从终态退回活跃态时触发
type StatusRegressionRule struct{}

// NewStatusRegressionRule 创建状态回退规则
func NewStatusRegressionRule() *StatusRegressionRule {
	return &StatusRegressionRule{}
}

// Name 规则ID
func (r *StatusRegressionRule) Name() string {
	return RuleIDStatusRegression
}

// Evaluate 评估单个工单, 需依赖辅助数据中的上一轮状态
func (r *StatusRegressionRule) Evaluate(job *model.JobSnapshot, aux *AuxData) *TriggerResult {
	prev := aux.PrevStatusOf(job.JobID)
	if prev == "" {
		return nil
	}
	if !prev.IsTerminal() || !job.Status.IsActive() {
		return nil
	}

	return &TriggerResult{
		RuleID:   RuleIDStatusRegression,
		RuleName: "Status Regression",
		Severity: model.SeverityMedium,
		Message:  fmt.Sprintf("job %s moved back from %s to %s", job.JobID, prev, job.Status),
		JobID:    job.JobID,
		Context: map[string]string{
			"previous_status": string(prev),
			"current_status":  string(job.Status),
		},
	}
}
