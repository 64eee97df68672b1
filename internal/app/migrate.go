package app

import (
	"gorm.io/gorm"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// AutoMigrate 迁移全部历史表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.SnapshotRecord{},
		&model.AlertRecord{},
		&model.CycleMetric{},
	)
}
