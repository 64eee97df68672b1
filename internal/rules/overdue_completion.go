package rules

import (
	"fmt"
	"time"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// RuleIDOverdueCompletion 超时未完工规则ID
const RuleIDOverdueCompletion = "overdue-completion"

// OverdueCompletionRule 作业中工单超过最长时长仍未完工时触发
type OverdueCompletionRule struct {
	maxDuration time.Duration
	nowFunc     func() time.Time
}

// NewOverdueCompletionRule 创建超时未完工规则
func NewOverdueCompletionRule(maxDuration time.Duration) *OverdueCompletionRule {
	return &OverdueCompletionRule{
		maxDuration: maxDuration,
		nowFunc:     time.Now,
	}
}

// Name 规则ID
func (r *OverdueCompletionRule) Name() string {
	return RuleIDOverdueCompletion
}

// Evaluate 评估单个工单
func (r *OverdueCompletionRule) Evaluate(job *model.JobSnapshot, _ *AuxData) *TriggerResult {
	if job.Status != model.JobStatusInProgress {
		return nil
	}
	if !job.HasStarted() || job.HasCompleted() {
		return nil
	}

	elapsed := r.nowFunc().Sub(time.UnixMilli(*job.StartedAt))
	if elapsed < r.maxDuration {
		return nil
	}

	return &TriggerResult{
		RuleID:   RuleIDOverdueCompletion,
		RuleName: "Overdue Completion",
		Severity: model.SeverityHigh,
		Message:  fmt.Sprintf("job %s has been in progress for %s", job.JobID, elapsed.Round(time.Minute)),
		JobID:    job.JobID,
		Context: map[string]string{
			"assignee_id": job.AssigneeID,
			"started_at":  time.UnixMilli(*job.StartedAt).UTC().Format(time.RFC3339),
		},
	}
}
