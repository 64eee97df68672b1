// Package rules 定义告警规则引擎
package rules

import (
	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// TriggerResult 规则触发结果
type TriggerResult struct {
	RuleID   string            // 规则ID
	RuleName string            // 规则名称
	Severity model.Severity    // 告警级别
	Message  string            // 告警描述
	JobID    string            // 触发的工单
	Context  map[string]string // 附加上下文
}

// AuxData 辅助核验数据
//
// 全部字段可缺失：缺失表示"核验未知"，规则须视为不触发条件，
// 而不是错误。
type AuxData struct {
	// Telemetry 按作业人员的最近车辆遥测定位
	Telemetry map[string]*model.TelemetryFix
	// PrevStatus 上一周期缓存中的工单状态
	PrevStatus map[string]model.JobStatus
}

// TelemetryFor 获取作业人员的遥测定位，未知返回 nil
func (a *AuxData) TelemetryFor(assigneeID string) *model.TelemetryFix {
	if a == nil || a.Telemetry == nil {
		return nil
	}
	return a.Telemetry[assigneeID]
}

// PrevStatusOf 获取工单的上一周期状态，未知返回空串
func (a *AuxData) PrevStatusOf(jobID string) model.JobStatus {
	if a == nil || a.PrevStatus == nil {
		return ""
	}
	return a.PrevStatus[jobID]
}

// Rule 告警规则
//
// 实现必须是纯函数式的：不修改入参、彼此独立、对缺失的可选字段
// 返回 nil 而不是 panic。返回 nil 表示不触发。
type Rule interface {
	// Name 规则ID，同时作为告警指纹的组成部分
	Name() string
	// Evaluate 评估单个工单，不触发返回 nil
	Evaluate(job *model.JobSnapshot, aux *AuxData) *TriggerResult
}
