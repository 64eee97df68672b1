// Package model 定义调度监控的核心数据模型
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout 业务日期格式 (调度日)
const DateLayout = "2006-01-02"

// JobStatus 工单状态
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "SCHEDULED"   // 已排期
	JobStatusEnRoute    JobStatus = "EN_ROUTE"    // 在途
	JobStatusInProgress JobStatus = "IN_PROGRESS" // 作业中
	JobStatusCompleted  JobStatus = "COMPLETED"   // 已完成
	JobStatusCancelled  JobStatus = "CANCELLED"   // 已取消
)

// IsTerminal 检查是否为终态
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// IsActive 检查是否为活跃状态 (已分派且未结束)
func (s JobStatus) IsActive() bool {
	return s == JobStatusEnRoute || s == JobStatusInProgress
}

// JobSnapshot 一次拉取中捕获的工单状态，捕获后不可变
type JobSnapshot struct {
	JobID            string            // 上游稳定标识
	ScheduledDate    string            // 业务日期 (DateLayout)
	Status           JobStatus         // 工单状态
	AssigneeID       string            // 分派的作业人员，空表示未分派
	SiteID           string            // 作业地点
	JobValue         decimal.Decimal   // 工单金额
	ScheduledStartAt int64             // 计划开始时间 (毫秒)
	StartedAt        *int64            // 实际开始时间 (毫秒)，未开始为 nil
	CompletedAt      *int64            // 实际完成时间 (毫秒)，未完成为 nil
	Raw              map[string]string // 未建模的原始字段侧通道
	FetchedAt        int64             // 拉取时间 (毫秒)
}

// ScheduledDateOf 解析业务日期，解析失败返回零值
func (s *JobSnapshot) ScheduledDateOf() time.Time {
	t, err := time.Parse(DateLayout, s.ScheduledDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasStarted 检查是否已记录实际开始时间
func (s *JobSnapshot) HasStarted() bool {
	return s.StartedAt != nil && *s.StartedAt > 0
}

// HasCompleted 检查是否已记录实际完成时间
func (s *JobSnapshot) HasCompleted() bool {
	return s.CompletedAt != nil && *s.CompletedAt > 0
}

// TelemetryFix 作业人员车辆遥测定位 (辅助核验数据)
type TelemetryFix struct {
	AssigneeID string  `json:"assignee_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	RecordedAt int64   `json:"recorded_at"` // 毫秒
}
