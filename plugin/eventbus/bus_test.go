package eventbus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	bus := New(0)
	var got []Event
	unsubscribe := bus.Subscribe("conv1", func(ev Event) {
		got = append(got, ev)
	})
	defer unsubscribe()

	bus.Emit("conv1", SessionStarted{ConversationUID: "conv1"})
	bus.Emit("conv1", TranscriptSaved{Length: 42})
	bus.Emit("conv2", Error{Message: "other topic"})

	require.Len(t, got, 2)
	require.Equal(t, SessionStarted{ConversationUID: "conv1"}, got[0])
	require.Equal(t, TranscriptSaved{Length: 42}, got[1])
}

func TestSubscribeReplaysHistoryInOrder(t *testing.T) {
	bus := New(0)
	bus.Emit("conv1", SessionStarted{ConversationUID: "conv1"})
	bus.Emit("conv1", Status{Code: "session.negotiated"})
	bus.Emit("conv1", TranscriptSaved{Length: 7})

	var got []Event
	defer bus.Subscribe("conv1", func(ev Event) {
		got = append(got, ev)
	})()

	require.Len(t, got, 3)
	require.Equal(t, "session.started", got[0].Kind())
	require.Equal(t, "status", got[1].Kind())
	require.Equal(t, "transcript.saved", got[2].Kind())
}

func TestHistoryEvictsOldest(t *testing.T) {
	bus := New(3)
	for i := 0; i < 5; i++ {
		bus.Emit("conv1", Status{Code: fmt.Sprintf("step-%d", i)})
	}

	var got []Event
	defer bus.Subscribe("conv1", func(ev Event) {
		got = append(got, ev)
	})()

	require.Len(t, got, 3)
	require.Equal(t, Status{Code: "step-2"}, got[0])
	require.Equal(t, Status{Code: "step-4"}, got[2])
}

func TestCompleteDropsTopic(t *testing.T) {
	bus := New(0)
	bus.Emit("conv1", SessionStarted{ConversationUID: "conv1"})
	bus.Complete("conv1")

	// Emits after completion go nowhere and history is gone.
	bus.Emit("conv1", Error{Message: "late"})

	calls := 0
	unsubscribe := bus.Subscribe("conv1", func(Event) { calls++ })
	bus.Emit("conv1", TranscriptSaved{Length: 1})
	unsubscribe()

	require.Zero(t, calls)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := New(0)
	calls := 0
	unsubscribe := bus.Subscribe("conv1", func(Event) { calls++ })
	unsubscribe()
	unsubscribe()

	bus.Emit("conv1", SessionStarted{ConversationUID: "conv1"})
	require.Zero(t, calls)
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	bus := New(0)
	const emits = 200
	bus.Emit("conv1", SessionStarted{ConversationUID: "conv1"})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < emits; j++ {
				bus.Emit("conv1", TranscriptSaved{Length: j})
			}
		}()
	}

	var mu sync.Mutex
	seen := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer bus.Subscribe("conv1", func(Event) {
				mu.Lock()
				seen++
				mu.Unlock()
			})()
		}()
	}
	wg.Wait()

	// Each subscriber sees replayed history at minimum; nothing panics or
	// deadlocks under the interleaving.
	require.Positive(t, seen)
}
