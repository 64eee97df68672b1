// Package kafka Kafka 告警生产者单元测试
package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

func mockProducer(t *testing.T) (*AlertProducer, *mocks.SyncProducer) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, config)

	return &AlertProducer{
		producer: mock,
		topic:    "dispatch-alerts",
	}, mock
}

func sampleAlert() *model.Alert {
	return &model.Alert{
		ID:          "alert-1",
		Fingerprint: "fp-1",
		RuleID:      "missing-assignment",
		RuleName:    "Missing Assignment",
		Severity:    model.SeverityHigh,
		Message:     "job J-1 has no assignee",
		JobID:       "J-1",
		Context:     map[string]string{"status": "SCHEDULED"},
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func TestAlertProducer_NotifyCreated(t *testing.T) {
	p, mock := mockProducer(t)
	defer func() { _ = p.Close() }()

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(data []byte) error {
		var msg AlertMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		assert.Equal(t, EventAlertCreated, msg.EventType)
		assert.Equal(t, "alert-1", msg.AlertID)
		assert.Equal(t, "HIGH", msg.Severity)
		assert.Equal(t, "J-1", msg.JobID)
		assert.Positive(t, msg.EmittedAt)
		return nil
	})

	require.NoError(t, p.NotifyCreated(sampleAlert()))
}

func TestAlertProducer_NotifyResolved(t *testing.T) {
	p, mock := mockProducer(t)
	defer func() { _ = p.Close() }()

	alert := sampleAlert()
	resolvedAt := time.Now().UnixMilli()
	alert.Resolved = true
	alert.ResolvedAt = &resolvedAt

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(data []byte) error {
		var msg AlertMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		assert.Equal(t, EventAlertResolved, msg.EventType)
		require.NotNil(t, msg.ResolvedAt)
		return nil
	})

	require.NoError(t, p.NotifyResolved(alert))
}

func TestAlertProducer_SendError(t *testing.T) {
	p, mock := mockProducer(t)
	defer func() { _ = p.Close() }()

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	assert.Error(t, p.NotifyCreated(sampleAlert()))
}
