// Package detector 提供工单快照的字段级变更检测
package detector

import (
	"sort"
	"strconv"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// WindowPredicate 判断业务日期是否落在本次拉取的查询窗口内
type WindowPredicate func(scheduledDate string) bool

// 参与比较的字段名
const (
	FieldStatus           = "status"
	FieldAssigneeID       = "assignee_id"
	FieldSiteID           = "site_id"
	FieldJobValue         = "job_value"
	FieldScheduledDate    = "scheduled_date"
	FieldScheduledStartAt = "scheduled_start_at"
	FieldStartedAt        = "started_at"
	FieldCompletedAt      = "completed_at"
)

// Diff 计算前后两份快照集合的分类变更
//
// 只比较规则关心的类型化字段，Raw 侧通道的波动不产生 MODIFIED。
// 前集合中缺失于后集合的工单，仅当其 ScheduledDate 满足 inWindow
// 时才归类为 REMOVED；窗口外的缺失静默忽略。纯函数，不修改入参。
func Diff(
	previous map[string]*model.JobSnapshot,
	current map[string]*model.JobSnapshot,
	inWindow WindowPredicate,
	detectedAt int64,
) []*model.ChangeRecord {
	changes := make([]*model.ChangeRecord, 0)

	for id, cur := range current {
		prev, ok := previous[id]
		if !ok {
			changes = append(changes, &model.ChangeRecord{
				JobID:      id,
				Type:       model.ChangeTypeAdded,
				DetectedAt: detectedAt,
			})
			continue
		}

		diffs := fieldDiffs(prev, cur)
		if len(diffs) > 0 {
			changes = append(changes, &model.ChangeRecord{
				JobID:      id,
				Type:       model.ChangeTypeModified,
				FieldDiffs: diffs,
				DetectedAt: detectedAt,
			})
		}
	}

	for id, prev := range previous {
		if _, ok := current[id]; ok {
			continue
		}
		if inWindow == nil || !inWindow(prev.ScheduledDate) {
			// 查询窗口滑动造成的缺失，不是真正的消失
			continue
		}
		changes = append(changes, &model.ChangeRecord{
			JobID:      id,
			Type:       model.ChangeTypeRemoved,
			DetectedAt: detectedAt,
		})
	}

	// 稳定输出顺序，便于事件消费方与测试断言
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changes[i].Type < changes[j].Type
		}
		return changes[i].JobID < changes[j].JobID
	})

	return changes
}

// fieldDiffs 比较规则关心的类型化字段
func fieldDiffs(prev, cur *model.JobSnapshot) []model.FieldDiff {
	var diffs []model.FieldDiff

	if prev.Status != cur.Status {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldStatus,
			Old:   string(prev.Status),
			New:   string(cur.Status),
		})
	}
	if prev.AssigneeID != cur.AssigneeID {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldAssigneeID,
			Old:   prev.AssigneeID,
			New:   cur.AssigneeID,
		})
	}
	if prev.SiteID != cur.SiteID {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldSiteID,
			Old:   prev.SiteID,
			New:   cur.SiteID,
		})
	}
	if !prev.JobValue.Equal(cur.JobValue) {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldJobValue,
			Old:   prev.JobValue.String(),
			New:   cur.JobValue.String(),
		})
	}
	if prev.ScheduledDate != cur.ScheduledDate {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldScheduledDate,
			Old:   prev.ScheduledDate,
			New:   cur.ScheduledDate,
		})
	}
	if prev.ScheduledStartAt != cur.ScheduledStartAt {
		diffs = append(diffs, model.FieldDiff{
			Field: FieldScheduledStartAt,
			Old:   formatMillis(prev.ScheduledStartAt),
			New:   formatMillis(cur.ScheduledStartAt),
		})
	}
	if d, changed := ptrDiff(FieldStartedAt, prev.StartedAt, cur.StartedAt); changed {
		diffs = append(diffs, d)
	}
	if d, changed := ptrDiff(FieldCompletedAt, prev.CompletedAt, cur.CompletedAt); changed {
		diffs = append(diffs, d)
	}

	return diffs
}

func ptrDiff(field string, prev, cur *int64) (model.FieldDiff, bool) {
	oldVal := ""
	if prev != nil {
		oldVal = formatMillis(*prev)
	}
	newVal := ""
	if cur != nil {
		newVal = formatMillis(*cur)
	}
	if oldVal == newVal {
		return model.FieldDiff{}, false
	}
	return model.FieldDiff{Field: field, Old: oldVal, New: newVal}, true
}

// formatMillis 毫秒时间戳的十进制呈现，零值呈现为空
func formatMillis(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
