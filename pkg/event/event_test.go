package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFiltersAndDelivers(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	all := bus.Subscribe(nil)
	one := bus.Subscribe(ForConversation("thread_1"))
	suspends := bus.Subscribe(ForTypes(RunSuspended))

	bus.Observe(Event{Type: StepStarted, ConversationID: "thread_1", Step: "classify"})
	bus.Observe(Event{Type: RunSuspended, ConversationID: "thread_2", Step: "human_review"})

	assert.Len(t, all.C(), 2)
	require.Len(t, one.C(), 1)
	assert.Equal(t, "classify", (<-one.C()).Step)
	require.Len(t, suspends.C(), 1)
	assert.Equal(t, "thread_2", (<-suspends.C()).ConversationID)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(nil)

	bus.Observe(Event{Type: StepStarted})
	bus.Observe(Event{Type: StepFinished})

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, StepStarted, (<-sub.C()).Type)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe(nil)
	require.Equal(t, 1, bus.Len())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Len())

	_, ok := <-sub.C()
	assert.False(t, ok)

	bus.Observe(Event{Type: RunStarted})
}

func TestBusCloseEndsSubscriptions(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe(nil)
	bus.Close()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	late := bus.Subscribe(nil)
	_, ok := <-late.C()
	assert.False(t, ok)
	sub.Close()
}

func TestMultiSkipsNil(t *testing.T) {
	var got []Type
	obs := Multi(nil, ObserverFunc(func(e Event) { got = append(got, e.Type) }), Nop)
	obs.Observe(Event{Type: RunTerminated})
	assert.Equal(t, []Type{RunTerminated}, got)
	assert.True(t, RunTerminated.IsTerminal())
	assert.False(t, StepFinished.IsTerminal())
}

func TestAllCombinesFilters(t *testing.T) {
	f := All(ForWorkflow("email"), nil, ForTypes(RunSuspended, RunTerminated))

	assert.True(t, f(Event{Type: RunSuspended, Workflow: "email"}))
	assert.False(t, f(Event{Type: RunSuspended, Workflow: "weather"}))
	assert.False(t, f(Event{Type: StepStarted, Workflow: "email"}))
	assert.True(t, All()(Event{}))
}
