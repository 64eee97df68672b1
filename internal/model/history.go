package model

import (
	"github.com/shopspring/decimal"
)

// SnapshotRecord 工单快照历史行 (追加写)
type SnapshotRecord struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID            string          `gorm:"type:varchar(64);not null;index:idx_snapshot_job_fetched,priority:1" json:"job_id"`
	FetchedAt        int64           `gorm:"type:bigint;not null;index:idx_snapshot_job_fetched,priority:2" json:"fetched_at"`
	ScheduledDate    string          `gorm:"type:varchar(10);index;not null" json:"scheduled_date"`
	Status           JobStatus       `gorm:"type:varchar(20);not null" json:"status"`
	AssigneeID       string          `gorm:"type:varchar(64)" json:"assignee_id"`
	SiteID           string          `gorm:"type:varchar(64)" json:"site_id"`
	JobValue         decimal.Decimal `gorm:"type:decimal(18,2)" json:"job_value"`
	ScheduledStartAt int64           `gorm:"type:bigint" json:"scheduled_start_at"`
	StartedAt        *int64          `gorm:"type:bigint" json:"started_at"`
	CompletedAt      *int64          `gorm:"type:bigint" json:"completed_at"`
	RawPayload       string          `gorm:"type:text" json:"raw_payload"` // JSON
	CreatedAt        int64           `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (SnapshotRecord) TableName() string {
	return "job_snapshots"
}

// AlertRecord 告警历史行，按 fingerprint + created_at 定位一条生命周期
type AlertRecord struct {
	ID             int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID        string   `gorm:"type:varchar(64);uniqueIndex;not null" json:"alert_id"`
	Fingerprint    string   `gorm:"type:varchar(64);not null;index:idx_alert_fp_created,priority:1" json:"fingerprint"`
	CreatedAt      int64    `gorm:"type:bigint;not null;index:idx_alert_fp_created,priority:2" json:"created_at"`
	RuleID         string   `gorm:"type:varchar(64);index;not null" json:"rule_id"`
	RuleName       string   `gorm:"type:varchar(128)" json:"rule_name"`
	Severity       Severity `gorm:"type:smallint;not null;index" json:"severity"`
	Message        string   `gorm:"type:varchar(512)" json:"message"`
	JobID          string   `gorm:"type:varchar(64);index;not null" json:"job_id"`
	Acknowledged   bool     `gorm:"not null;default:false" json:"acknowledged"`
	AcknowledgedAt *int64   `gorm:"type:bigint" json:"acknowledged_at"`
	AcknowledgedBy string   `gorm:"type:varchar(64)" json:"acknowledged_by"`
	Dismissed      bool     `gorm:"not null;default:false" json:"dismissed"`
	DismissedAt    *int64   `gorm:"type:bigint" json:"dismissed_at"`
	DismissedBy    string   `gorm:"type:varchar(64)" json:"dismissed_by"`
	Resolved       bool     `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt     *int64   `gorm:"type:bigint" json:"resolved_at"`
}

// TableName 返回表名
func (AlertRecord) TableName() string {
	return "alert_history"
}

// NewAlertRecord 从内存告警构建历史行
func NewAlertRecord(a *Alert) *AlertRecord {
	return &AlertRecord{
		AlertID:        a.ID,
		Fingerprint:    a.Fingerprint,
		CreatedAt:      a.CreatedAt,
		RuleID:         a.RuleID,
		RuleName:       a.RuleName,
		Severity:       a.Severity,
		Message:        a.Message,
		JobID:          a.JobID,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: clonePtr(a.AcknowledgedAt),
		AcknowledgedBy: a.AcknowledgedBy,
		Dismissed:      a.Dismissed,
		DismissedAt:    clonePtr(a.DismissedAt),
		DismissedBy:    a.DismissedBy,
		Resolved:       a.Resolved,
		ResolvedAt:     clonePtr(a.ResolvedAt),
	}
}

// CycleMetric 周期性能指标行，按 (component, timestamp) 定位
type CycleMetric struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Component      string `gorm:"type:varchar(32);not null;index:idx_metric_comp_ts,priority:1" json:"component"`
	Timestamp      int64  `gorm:"type:bigint;not null;index:idx_metric_comp_ts,priority:2" json:"timestamp"`
	DurationMs     int64  `gorm:"type:bigint;not null" json:"duration_ms"`
	JobCount       int    `gorm:"type:int;not null" json:"job_count"`
	ChangeCount    int    `gorm:"type:int;not null" json:"change_count"`
	NewAlerts      int    `gorm:"type:int;not null" json:"new_alerts"`
	ResolvedAlerts int    `gorm:"type:int;not null" json:"resolved_alerts"`
	Succeeded      bool   `gorm:"not null;default:true" json:"succeeded"`
	ErrorMessage   string `gorm:"type:varchar(512)" json:"error_message"`
}

// TableName 返回表名
func (CycleMetric) TableName() string {
	return "cycle_metrics"
}
