// Package metrics 提供 dispatch-monitor 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch_monitor"

// 轮询周期指标
var (
	// CyclesTotal 轮询周期总数
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "轮询周期总数",
		},
		[]string{"result"}, // completed/fetch_failed/skipped
	)

	// CycleDuration 轮询周期耗时
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "轮询周期耗时(秒)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// JobsFetched 单周期拉取的工单数
	JobsFetched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_fetched",
			Help:      "最近一次周期拉取的工单数",
		},
	)

	// ConsecutiveFetchFailures 连续拉取失败次数
	ConsecutiveFetchFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_fetch_failures",
			Help:      "连续拉取失败次数",
		},
	)
)

// 变更检测指标
var (
	// ChangesDetectedTotal 检测到的变更总数
	ChangesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_detected_total",
			Help:      "检测到的工单变更总数",
		},
		[]string{"type"}, // added/modified/removed
	)
)

// 快照缓存指标
var (
	// CacheSize 快照缓存当前大小
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_size",
			Help:      "快照缓存当前条目数",
		},
	)

	// CacheEvictionsTotal 快照缓存淘汰总数
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_evictions_total",
			Help:      "快照缓存淘汰总数",
		},
		[]string{"reason"}, // capacity/expired
	)
)

// 规则与告警指标
var (
	// RuleEvaluationsTotal 规则评估总数
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "规则评估总数",
		},
		[]string{"rule", "result"}, // result: triggered/passed/panic
	)

	// AlertsTotal 告警提交总数
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "告警提交总数",
		},
		[]string{"rule", "severity", "outcome"}, // outcome: created/deduplicated
	)

	// AlertsResolvedTotal 告警解除总数
	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "告警解除总数",
		},
		[]string{"rule"},
	)

	// ActiveAlerts 当前活跃告警数
	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "当前活跃告警数",
		},
		[]string{"severity"},
	)
)

// 持久化指标
var (
	// PersistOpsTotal 持久化操作总数
	PersistOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_ops_total",
			Help:      "持久化操作总数",
		},
		[]string{"kind", "result"}, // kind: snapshots/alerts/metrics, result: ok/error/dropped
	)

	// KafkaMessagesProduced Kafka 生产消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka 生产消息总数",
		},
		[]string{"topic"},
	)
)

// Helper functions

// RecordCycle 记录轮询周期
func RecordCycle(result string, durationSeconds float64) {
	CyclesTotal.WithLabelValues(result).Inc()
	if result == "completed" {
		CycleDuration.Observe(durationSeconds)
	}
}

// RecordChange 记录变更
func RecordChange(changeType string) {
	ChangesDetectedTotal.WithLabelValues(changeType).Inc()
}

// RecordCacheEviction 记录缓存淘汰
func RecordCacheEviction(reason string) {
	CacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordRuleEvaluation 记录规则评估
func RecordRuleEvaluation(rule, result string) {
	RuleEvaluationsTotal.WithLabelValues(rule, result).Inc()
}

// RecordAlert 记录告警提交
func RecordAlert(rule, severity, outcome string) {
	AlertsTotal.WithLabelValues(rule, severity, outcome).Inc()
}

// RecordAlertResolved 记录告警解除
func RecordAlertResolved(rule string) {
	AlertsResolvedTotal.WithLabelValues(rule).Inc()
}

// RecordPersistOp 记录持久化操作
func RecordPersistOp(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PersistOpsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPersistDrop 记录队列满时被丢弃的持久化任务
func RecordPersistDrop(kind string) {
	PersistOpsTotal.WithLabelValues(kind, "dropped").Inc()
}
