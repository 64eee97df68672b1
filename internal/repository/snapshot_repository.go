package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// SnapshotRepository 工单快照历史仓储 (追加写)
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository 创建工单快照仓储
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// BatchCreate 批量写入一个周期的快照
func (r *SnapshotRepository) BatchCreate(ctx context.Context, snapshots []*model.JobSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	records := make([]*model.SnapshotRecord, 0, len(snapshots))
	for _, s := range snapshots {
		records = append(records, newSnapshotRecord(s))
	}

	result := r.db.WithContext(ctx).CreateInBatches(records, 100)
	return result.Error
}

// ListByJob 查询单个工单的快照历史，时间降序
func (r *SnapshotRepository) ListByJob(ctx context.Context, jobID string, pagination *Pagination) ([]*model.SnapshotRecord, int64, error) {
	var records []*model.SnapshotRecord
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.SnapshotRecord{}).
		Where("job_id = ?", jobID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("fetched_at DESC").
		Find(&records).Error

	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// LatestByJob 查询单个工单最近一次快照
func (r *SnapshotRepository) LatestByJob(ctx context.Context, jobID string) (*model.SnapshotRecord, error) {
	var record model.SnapshotRecord
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("fetched_at DESC").
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteBefore 清理指定时间之前的快照，返回删除行数
func (r *SnapshotRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("fetched_at < ?", before.UnixMilli()).
		Delete(&model.SnapshotRecord{})
	return result.RowsAffected, result.Error
}

func newSnapshotRecord(s *model.JobSnapshot) *model.SnapshotRecord {
	raw := ""
	if len(s.Raw) > 0 {
		if data, err := json.Marshal(s.Raw); err == nil {
			raw = string(data)
		}
	}

	return &model.SnapshotRecord{
		JobID:            s.JobID,
		FetchedAt:        s.FetchedAt,
		ScheduledDate:    s.ScheduledDate,
		Status:           s.Status,
		AssigneeID:       s.AssigneeID,
		SiteID:           s.SiteID,
		JobValue:         s.JobValue,
		ScheduledStartAt: s.ScheduledStartAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		RawPayload:       raw,
	}
}
