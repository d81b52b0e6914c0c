// Package events fans gameplay notifications out to subscribers without ever
// blocking the publisher.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/storyweave/internal/interfaces"
	"go.uber.org/zap"
)

// Event names published by the game manager
const (
	StoryStarted         = "story.started"
	ChoiceMade           = "choice.made"
	BeatReached          = "beat.reached"
	ConsequenceTriggered = "consequence.triggered"
	StoryCompleted       = "story.completed"
	ArcUnlocked          = "arc.unlocked"
)

// Event is a published notification
type Event struct {
	Sequence uint64
	Name     string
	Payload  map[string]any
	Time     time.Time
}

// PlayerID returns the player the event concerns, if any
func (e Event) PlayerID() string {
	id, _ := e.Payload["player_id"].(string)
	return id
}

// Bus handles dispatching of published events to subscribers
type Bus struct {
	logger   *zap.Logger
	buffer   int
	incoming chan Event
	stopChan chan struct{}
	done     chan struct{}
	seq      atomic.Uint64
	dropped  atomic.Uint64
	started  atomic.Bool

	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextSub uint64
	once    sync.Once
}

var _ interfaces.EventSink = (*Bus)(nil)

// NewBus creates a bus whose queues hold buffer events each
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:   logger,
		buffer:   buffer,
		incoming: make(chan Event, buffer),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[uint64]chan Event),
	}
}

// Publish queues an event. When the queue is full the event is dropped.
func (b *Bus) Publish(name string, payload map[string]any) {
	e := Event{
		Sequence: b.seq.Add(1),
		Name:     name,
		Payload:  payload,
		Time:     time.Now().UTC(),
	}
	select {
	case b.incoming <- e:
	default:
		b.dropped.Add(1)
		b.logger.Debug("Dropped event, queue full", zap.String("event", name))
	}
}

// Start begins dispatching queued events
func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(b.done)
		for {
			select {
			case e := <-b.incoming:
				b.dispatch(e)
			case <-b.stopChan:
				b.closeSubscribers()
				return
			}
		}
	}()
}

// Stop halts dispatching and closes every subscription
func (b *Bus) Stop() {
	b.once.Do(func() {
		close(b.stopChan)
	})
	if b.started.Load() {
		<-b.done
		return
	}
	b.closeSubscribers()
}

// Dropped returns how many events were discarded because a queue was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe returns a channel of events and a function that cancels it
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("Dropped event for slow subscriber", zap.String("event", e.Name))
		}
	}
}

func (b *Bus) closeSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
