// Package alerts 管理活跃告警集合与生命周期
package alerts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/cache"
	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/internal/rules"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// ErrAlertNotFound 告警不存在
var ErrAlertNotFound = errors.New("alert not found")

// Outcome 告警提交结果
type Outcome string

const (
	OutcomeCreated      Outcome = "created"      // 新建或刷新活跃告警
	OutcomeDeduplicated Outcome = "deduplicated" // 去重窗口内被抑制
)

// Fingerprint 计算告警指纹，同一 (规则, 工单) 组合恒定
func Fingerprint(ruleID, jobID string) string {
	sum := md5.Sum([]byte(ruleID + ":" + jobID))
	return hex.EncodeToString(sum[:])
}

// Filter 活跃告警查询条件
type Filter struct {
	Severity     *model.Severity
	Acknowledged *bool
	Limit        int
}

// BulkResult 批量操作结果，逐个累计成功失败而不整体报错
type BulkResult struct {
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Statistics 告警统计
type Statistics struct {
	Active        int            `json:"active"`
	BySeverity    map[string]int `json:"by_severity"`
	ByRule        map[string]int `json:"by_rule"`
	TotalCreated  int64          `json:"total_created"`
	TotalDeduped  int64          `json:"total_deduped"`
	TotalResolved int64          `json:"total_resolved"`
	HistorySize   int            `json:"history_size"`
	DedupSize     int            `json:"dedup_size"`
}

// Store 活跃告警存储
//
// 状态机: active → (acknowledged / dismissed, 正交标志) → resolved (终态)。
// 解除后的告警归档进有界历史，指纹可再次触发新告警。
type Store struct {
	mu           sync.Mutex
	active       map[string]*model.Alert // fingerprint → alert
	byID         map[string]*model.Alert // alertID → alert (仅活跃)
	history      []*model.Alert          // 时间升序，超限裁剪最旧
	historyLimit int
	dedup        cache.DedupCache

	totalCreated  int64
	totalDeduped  int64
	totalResolved int64

	nowFunc func() time.Time
}

// NewStore 创建告警存储
func NewStore(dedup cache.DedupCache, historyLimit int) *Store {
	return &Store{
		active:       make(map[string]*model.Alert),
		byID:         make(map[string]*model.Alert),
		historyLimit: historyLimit,
		dedup:        dedup,
		nowFunc:      time.Now,
	}
}

// Submit 提交一条规则触发结果
//
// 去重窗口内的重复指纹被抑制并返回 OutcomeDeduplicated；否则新建
// (或刷新已有活跃告警的内容) 并返回 OutcomeCreated。
func (s *Store) Submit(ctx context.Context, trigger *rules.TriggerResult) (Outcome, *model.Alert, error) {
	fp := Fingerprint(trigger.RuleID, trigger.JobID)

	allowed, err := s.dedup.CheckAndMark(ctx, fp)
	if err != nil {
		// 去重缓存故障时宁可重复也不漏报
		logger.Warn("dedup cache unavailable, emitting without suppression",
			zap.String("fingerprint", fp),
			zap.Error(err))
		allowed = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowed {
		s.totalDeduped++
		metrics.RecordAlert(trigger.RuleID, trigger.Severity.String(), string(OutcomeDeduplicated))
		existing := s.active[fp]
		if existing != nil {
			return OutcomeDeduplicated, existing.Clone(), nil
		}
		return OutcomeDeduplicated, nil, nil
	}

	now := s.nowFunc().UnixMilli()
	alert := s.active[fp]
	if alert != nil {
		// 指纹已有活跃告警: 刷新内容但保留ID、创建时间与生命周期标志
		alert.Severity = trigger.Severity
		alert.Message = trigger.Message
		alert.Context = trigger.Context
	} else {
		alert = &model.Alert{
			ID:          uuid.NewString(),
			Fingerprint: fp,
			RuleID:      trigger.RuleID,
			RuleName:    trigger.RuleName,
			Severity:    trigger.Severity,
			Message:     trigger.Message,
			JobID:       trigger.JobID,
			Context:     trigger.Context,
			CreatedAt:   now,
		}
		s.active[fp] = alert
		s.byID[alert.ID] = alert
	}

	s.totalCreated++
	metrics.RecordAlert(trigger.RuleID, trigger.Severity.String(), string(OutcomeCreated))
	s.updateGaugesLocked()

	logger.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("rule", alert.RuleID),
		zap.String("job_id", alert.JobID),
		zap.String("severity", alert.Severity.String()))

	return OutcomeCreated, alert.Clone(), nil
}

// ResolveMissing 解除本周期不再触发的活跃告警
//
// stillTriggering 为本周期全部触发指纹的集合。不在集合内的活跃告警
// 转为 resolved，移出活跃集合并归档进历史。返回被解除的告警。
func (s *Store) ResolveMissing(stillTriggering map[string]struct{}) []*model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UnixMilli()
	var resolved []*model.Alert
	for fp, alert := range s.active {
		if _, ok := stillTriggering[fp]; ok {
			continue
		}

		alert.Resolved = true
		alert.ResolvedAt = &now
		delete(s.active, fp)
		delete(s.byID, alert.ID)
		s.appendHistoryLocked(alert)

		s.totalResolved++
		metrics.RecordAlertResolved(alert.RuleID)
		resolved = append(resolved, alert.Clone())

		logger.Info("alert resolved",
			zap.String("alert_id", alert.ID),
			zap.String("rule", alert.RuleID),
			zap.String("job_id", alert.JobID))
	}

	sortAlerts(resolved)
	s.updateGaugesLocked()
	return resolved
}

// Acknowledge 确认告警，幂等
func (s *Store) Acknowledge(alertID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.byID[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	if alert.Acknowledged {
		return nil
	}

	now := s.nowFunc().UnixMilli()
	alert.Acknowledged = true
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	return nil
}

// Dismiss 屏蔽告警，幂等。与确认互不影响
func (s *Store) Dismiss(alertID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.byID[alertID]
	if !ok {
		return ErrAlertNotFound
	}
	if alert.Dismissed {
		return nil
	}

	now := s.nowFunc().UnixMilli()
	alert.Dismissed = true
	alert.DismissedAt = &now
	alert.DismissedBy = actor
	return nil
}

// AcknowledgeBulk 批量确认，逐个累计结果
func (s *Store) AcknowledgeBulk(alertIDs []string, actor string) *BulkResult {
	return s.bulk(alertIDs, func(id string) error { return s.Acknowledge(id, actor) })
}

// DismissBulk 批量屏蔽，逐个累计结果
func (s *Store) DismissBulk(alertIDs []string, actor string) *BulkResult {
	return s.bulk(alertIDs, func(id string) error { return s.Dismiss(id, actor) })
}

func (s *Store) bulk(alertIDs []string, op func(id string) error) *BulkResult {
	result := &BulkResult{}
	for _, id := range alertIDs {
		if err := op(id); err != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		result.Success++
	}
	return result
}

// HighestPriority 返回优先级最高的活跃告警，没有则返回 nil
//
// 排序: 级别降序 → 创建时间升序 → 指纹升序，保证严格全序。
func (s *Store) HighestPriority() *model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var top *model.Alert
	for _, alert := range s.active {
		if top == nil || alertLess(alert, top) {
			top = alert
		}
	}
	if top == nil {
		return nil
	}
	return top.Clone()
}

// List 按优先级顺序返回活跃告警
func (s *Store) List(filter *Filter) []*model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Alert
	for _, alert := range s.active {
		if filter != nil {
			if filter.Severity != nil && alert.Severity != *filter.Severity {
				continue
			}
			if filter.Acknowledged != nil && alert.Acknowledged != *filter.Acknowledged {
				continue
			}
		}
		out = append(out, alert.Clone())
	}

	sortAlerts(out)
	if filter != nil && filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// History 返回最近解除的告警，时间降序
func (s *Store) History(limit int) []*model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*model.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i].Clone())
	}
	return out
}

// ActiveCount 当前活跃告警数
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Statistics 返回告警统计
func (s *Store) Statistics(ctx context.Context) *Statistics {
	dedupSize, err := s.dedup.Size(ctx)
	if err != nil {
		logger.Warn("dedup cache size unavailable", zap.Error(err))
		dedupSize = -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Statistics{
		Active:        len(s.active),
		BySeverity:    make(map[string]int),
		ByRule:        make(map[string]int),
		TotalCreated:  s.totalCreated,
		TotalDeduped:  s.totalDeduped,
		TotalResolved: s.totalResolved,
		HistorySize:   len(s.history),
		DedupSize:     dedupSize,
	}
	for _, alert := range s.active {
		stats.BySeverity[alert.Severity.String()]++
		stats.ByRule[alert.RuleID]++
	}
	return stats
}

func (s *Store) appendHistoryLocked(alert *model.Alert) {
	s.history = append(s.history, alert)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

func (s *Store) updateGaugesLocked() {
	counts := make(map[model.Severity]int)
	for _, alert := range s.active {
		counts[alert.Severity]++
	}
	for _, sev := range []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical} {
		metrics.ActiveAlerts.WithLabelValues(sev.String()).Set(float64(counts[sev]))
	}
}

// alertLess 优先级比较: a 是否应排在 b 之前
func alertLess(a, b *model.Alert) bool {
	if a.Severity != b.Severity {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.Fingerprint < b.Fingerprint
}

func sortAlerts(alerts []*model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alertLess(alerts[i], alerts[j])
	})
}
