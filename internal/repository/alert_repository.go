package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// ErrAlertRecordNotFound 告警历史行不存在
var ErrAlertRecordNotFound = errors.New("alert record not found")

// AlertRepository 告警历史仓储
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository 创建告警历史仓储
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert 按告警ID写入或更新生命周期状态
//
// 告警创建时插入，确认/屏蔽/解除时覆盖同一行，保证历史行始终
// 反映告警的最终生命周期。
func (r *AlertRepository) Upsert(ctx context.Context, alert *model.Alert) error {
	record := model.NewAlertRecord(alert)

	result := r.db.WithContext(ctx).
		Model(&model.AlertRecord{}).
		Where("alert_id = ?", record.AlertID).
		Updates(map[string]interface{}{
			"severity":        record.Severity,
			"message":         record.Message,
			"acknowledged":    record.Acknowledged,
			"acknowledged_at": record.AcknowledgedAt,
			"acknowledged_by": record.AcknowledgedBy,
			"dismissed":       record.Dismissed,
			"dismissed_at":    record.DismissedAt,
			"dismissed_by":    record.DismissedBy,
			"resolved":        record.Resolved,
			"resolved_at":     record.ResolvedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.db.WithContext(ctx).Create(record).Error
	}
	return nil
}

// BatchUpsert 批量写入或更新
func (r *AlertRepository) BatchUpsert(ctx context.Context, alerts []*model.Alert) error {
	for _, alert := range alerts {
		if err := r.Upsert(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// GetByAlertID 按告警ID查询
func (r *AlertRepository) GetByAlertID(ctx context.Context, alertID string) (*model.AlertRecord, error) {
	var record model.AlertRecord
	err := r.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByFingerprint 查询同一指纹的全部历史生命周期，时间降序
func (r *AlertRepository) ListByFingerprint(ctx context.Context, fingerprint string, pagination *Pagination) ([]*model.AlertRecord, int64, error) {
	var records []*model.AlertRecord
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.AlertRecord{}).
		Where("fingerprint = ?", fingerprint)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&records).Error

	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListByJob 查询单个工单的告警历史，时间降序
func (r *AlertRepository) ListByJob(ctx context.Context, jobID string, pagination *Pagination) ([]*model.AlertRecord, int64, error) {
	var records []*model.AlertRecord
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.AlertRecord{}).
		Where("job_id = ?", jobID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&records).Error

	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CountResolvedBySeverity 统计已解除告警的级别分布
func (r *AlertRepository) CountResolvedBySeverity(ctx context.Context, since int64) (map[string]int64, error) {
	type row struct {
		Severity model.Severity
		Count    int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.AlertRecord{}).
		Select("severity, COUNT(*) as count").
		Where("resolved = ?", true).
		Where("created_at >= ?", since).
		Group("severity").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, r := range rows {
		counts[r.Severity.String()] = r.Count
	}
	return counts, nil
}
