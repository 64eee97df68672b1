package model

// ChangeType 变更类型
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "ADDED"
	ChangeTypeModified ChangeType = "MODIFIED"
	ChangeTypeRemoved  ChangeType = "REMOVED"
)

// FieldDiff 单字段变更
type FieldDiff struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeRecord 一个周期内检测到的工单变更
//
// REMOVED 仅在缺失工单的 ScheduledDate 落在本次拉取窗口内时成立，
// 窗口外的缺失视为查询范围滑动造成的假象，静默忽略。
type ChangeRecord struct {
	JobID      string      `json:"job_id"`
	Type       ChangeType  `json:"type"`
	FieldDiffs []FieldDiff `json:"field_diffs,omitempty"`
	DetectedAt int64       `json:"detected_at"` // 毫秒
}
