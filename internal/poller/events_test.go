package poller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

func TestEventBus_SubscribeAndEmit(t *testing.T) {
	bus := NewEventBus()

	var got []*model.ChangeRecord
	bus.SubscribeChanges(func(c []*model.ChangeRecord) { got = c })

	changes := []*model.ChangeRecord{{JobID: "J-1", Type: model.ChangeTypeAdded}}
	bus.emitChanges(changes)
	assert.Equal(t, changes, got)
}

func TestEventBus_EmptyPayloadNotDelivered(t *testing.T) {
	bus := NewEventBus()

	called := false
	bus.SubscribeChanges(func([]*model.ChangeRecord) { called = true })
	bus.SubscribeNewAlerts(func([]*model.Alert) { called = true })
	bus.SubscribeResolvedAlerts(func([]*model.Alert) { called = true })

	bus.emitChanges(nil)
	bus.emitNewAlerts([]*model.Alert{})
	bus.emitResolvedAlerts(nil)
	assert.False(t, called)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()

	var count int
	id := bus.SubscribeError(func(error) { count++ })

	bus.emitError(errors.New("boom"))
	bus.Unsubscribe(id)
	bus.emitError(errors.New("boom"))

	assert.Equal(t, 1, count)
}

func TestEventBus_SubscribersCalledInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus()

	var order []string
	bus.SubscribeCycle(func(*CycleSummary) { order = append(order, "first") })
	bus.SubscribeCycle(func(*CycleSummary) { order = append(order, "second") })
	bus.SubscribeCycle(func(*CycleSummary) { order = append(order, "third") })

	bus.emitCycle(&CycleSummary{Succeeded: true})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}
