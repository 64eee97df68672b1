// Package kafka 提供告警下游通知的 Kafka 生产者
package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/metrics"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// EventType 告警消息类型
const (
	EventAlertCreated  = "alert_created"
	EventAlertResolved = "alert_resolved"
)

// AlertNotifier 告警下游通知接口
type AlertNotifier interface {
	NotifyCreated(alert *model.Alert) error
	NotifyResolved(alert *model.Alert) error
	Close() error
}

// AlertProducer 告警 Kafka 生产者
//
// 同一工单的消息固定落在同一分区，保证单工单内的事件有序。
type AlertProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewAlertProducer 创建告警生产者
func NewAlertProducer(brokers []string, clientID, topic string) (*AlertProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &AlertProducer{
		producer: producer,
		topic:    topic,
	}, nil
}

// Close 关闭生产者
func (p *AlertProducer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NotifyCreated 发送新建告警消息
func (p *AlertProducer) NotifyCreated(alert *model.Alert) error {
	return p.send(EventAlertCreated, alert)
}

// NotifyResolved 发送解除告警消息
func (p *AlertProducer) NotifyResolved(alert *model.Alert) error {
	return p.send(EventAlertResolved, alert)
}

func (p *AlertProducer) send(eventType string, alert *model.Alert) error {
	payload := &AlertMessage{
		EventType:   eventType,
		AlertID:     alert.ID,
		Fingerprint: alert.Fingerprint,
		RuleID:      alert.RuleID,
		RuleName:    alert.RuleName,
		Severity:    alert.Severity.String(),
		Message:     alert.Message,
		JobID:       alert.JobID,
		Context:     alert.Context,
		CreatedAt:   alert.CreatedAt,
		ResolvedAt:  alert.ResolvedAt,
		EmittedAt:   time.Now().UnixMilli(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(alert.JobID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("severity"), Value: []byte(alert.Severity.String())},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send alert message",
			zap.String("alert_id", alert.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return err
	}

	metrics.KafkaMessagesProduced.WithLabelValues(p.topic).Inc()
	logger.Debug("alert message sent",
		zap.String("alert_id", alert.ID),
		zap.String("event_type", eventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// AlertMessage 告警消息线上格式
type AlertMessage struct {
	EventType   string            `json:"event_type"`
	AlertID     string            `json:"alert_id"`
	Fingerprint string            `json:"fingerprint"`
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	Severity    string            `json:"severity"`
	Message     string            `json:"message"`
	JobID       string            `json:"job_id"`
	Context     map[string]string `json:"context,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	ResolvedAt  *int64            `json:"resolved_at,omitempty"`
	EmittedAt   int64             `json:"emitted_at"`
}
