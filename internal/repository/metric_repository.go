package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// MetricRepository 周期指标仓储
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository 创建周期指标仓储
func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Create 写入一条周期指标
func (r *MetricRepository) Create(ctx context.Context, metric *model.CycleMetric) error {
	if metric.Timestamp == 0 {
		metric.Timestamp = time.Now().UnixMilli()
	}
	return r.db.WithContext(ctx).Create(metric).Error
}

// ListByComponent 查询组件的指标历史，时间降序
func (r *MetricRepository) ListByComponent(ctx context.Context, component string, pagination *Pagination) ([]*model.CycleMetric, int64, error) {
	var metrics []*model.CycleMetric
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.CycleMetric{}).
		Where("component = ?", component)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("timestamp DESC").
		Find(&metrics).Error

	if err != nil {
		return nil, 0, err
	}
	return metrics, total, nil
}

// FailureCount 统计时间范围内的失败周期数
func (r *MetricRepository) FailureCount(ctx context.Context, component string, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CycleMetric{}).
		Where("component = ?", component).
		Where("succeeded = ?", false).
		Where("timestamp >= ?", since).
		Count(&count).Error
	return count, err
}

// DeleteBefore 清理指定时间之前的指标，返回删除行数
func (r *MetricRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", before.UnixMilli()).
		Delete(&model.CycleMetric{})
	return result.RowsAffected, result.Error
}
