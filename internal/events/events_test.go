package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBusFansOut(t *testing.T) {
	bus := NewBus(8, nil)
	bus.Start()
	defer bus.Stop()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(ChoiceMade, map[string]any{"player_id": "p1", "choice_id": "walk"})

	ea := receive(t, a)
	eb := receive(t, b)
	assert.Equal(t, ChoiceMade, ea.Name)
	assert.Equal(t, ea.Sequence, eb.Sequence)
	assert.Equal(t, "p1", ea.PlayerID())
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(2, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(BeatReached, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, uint64(98), bus.Dropped())
}

func TestBusSlowSubscriberDoesNotStallOthers(t *testing.T) {
	bus := NewBus(1, nil)
	bus.Start()
	defer bus.Stop()

	_, cancelSlow := bus.Subscribe()
	defer cancelSlow()
	fast, cancelFast := bus.Subscribe()
	defer cancelFast()

	for i := 0; i < 5; i++ {
		bus.Publish(BeatReached, map[string]any{"n": i})
		receive(t, fast)
	}
}

func TestBusStopClosesSubscriptions(t *testing.T) {
	bus := NewBus(4, nil)
	bus.Start()
	ch, cancel := bus.Subscribe()

	bus.Stop()
	_, ok := <-ch
	assert.False(t, ok)

	cancel()
	bus.Stop()
}

func TestBusStopWithoutStart(t *testing.T) {
	bus := NewBus(4, nil)
	ch, _ := bus.Subscribe()
	bus.Stop()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestMarshalFrame(t *testing.T) {
	e := Event{
		Sequence: 7,
		Name:     ConsequenceTriggered,
		Time:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload: map[string]any{
			"player_id": "p1",
			"turn":      3,
			"tags":      []string{"a", "b"},
			"attrs":     map[string]int{"strength": 10},
			"when":      time.Second,
		},
	}

	data, err := MarshalFrame(e, false)
	require.NoError(t, err)

	var frame structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &frame))
	m := frame.AsMap()
	assert.Equal(t, ConsequenceTriggered, m["name"])
	assert.Equal(t, float64(7), m["sequence"])
	assert.Equal(t, "2026-01-02T03:04:05Z", m["time"])

	payload := m["payload"].(map[string]any)
	assert.Equal(t, float64(3), payload["turn"])
	assert.Equal(t, []any{"a", "b"}, payload["tags"])
	assert.Equal(t, map[string]any{"strength": float64(10)}, payload["attrs"])
	assert.Equal(t, "1s", payload["when"])

	text, err := MarshalFrame(e, true)
	require.NoError(t, err)
	var fromJSON structpb.Struct
	require.NoError(t, protojson.Unmarshal(text, &fromJSON))
	assert.Equal(t, "p1", fromJSON.AsMap()["payload"].(map[string]any)["player_id"])
}

func TestHubStreamsFilteredEvents(t *testing.T) {
	bus := NewBus(8, nil)
	bus.Start()
	defer bus.Stop()

	srv := httptest.NewServer(NewHub(bus, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?format=json&player=p2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the hub subscribes after the upgrade completes
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(ChoiceMade, map[string]any{"player_id": "p1"})
	bus.Publish(StoryStarted, map[string]any{"player_id": "p2", "story_id": "harbor"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)

	var frame structpb.Struct
	require.NoError(t, protojson.Unmarshal(data, &frame))
	assert.Equal(t, StoryStarted, frame.AsMap()["name"])
}
