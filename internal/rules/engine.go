package rules

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// Engine 规则引擎
//
// 每个周期对每个工单运行全部规则并收集所有触发结果。规则之间
// 互不影响；单条规则 panic 只丢弃该 (规则, 工单) 的结果，绝不中断
// 整个周期。
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine 创建规则引擎
func NewEngine() *Engine {
	return &Engine{
		rules: make([]Rule, 0),
	}
}

// Register 注册规则
func (e *Engine) Register(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = append(e.rules, rule)

	logger.Info("rule registered",
		zap.String("rule", rule.Name()))
}

// RuleNames 获取所有已注册规则名称
func (e *Engine) RuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// EvaluateAll 对全部工单运行全部规则，收集所有触发结果
func (e *Engine) EvaluateAll(jobs []*model.JobSnapshot, aux *AuxData) []*TriggerResult {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var results []*TriggerResult
	for _, job := range jobs {
		for _, rule := range rules {
			if result := e.evaluateOne(rule, job, aux); result != nil {
				results = append(results, result)
			}
		}
	}
	return results
}

// evaluateOne 评估单条规则，隔离 panic
func (e *Engine) evaluateOne(rule Rule, job *model.JobSnapshot, aux *AuxData) (result *TriggerResult) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordRuleEvaluation(rule.Name(), "panic")
			logger.Error("rule panicked, treated as non-triggering",
				zap.String("rule", rule.Name()),
				zap.String("job_id", job.JobID),
				zap.Any("panic", r))
			result = nil
		}
	}()

	result = rule.Evaluate(job, aux)
	if result != nil {
		metrics.RecordRuleEvaluation(rule.Name(), "triggered")
	} else {
		metrics.RecordRuleEvaluation(rule.Name(), "passed")
	}
	return result
}
