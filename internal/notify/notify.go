// Package notify implements the notification fan-out: a bounded,
// non-blocking fan-out from the event bus to pluggable outbound channels.
// The trading pipeline never waits for, or retries, a notification: a sink
// either absorbs the message within its own budget or the event is
// dropped.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bithumbot/internal/events"
	"bithumbot/internal/logging"
)

// Sink is one outbound notification channel.
type Sink interface {
	Notify(ctx context.Context, event events.Event) error
}

// Manager drains a single bounded queue into every registered Sink. When
// the queue is full, the oldest non-critical event is dropped to make room
// (critical = any exit or error); a newcomer that is itself non-critical
// is dropped outright if the queue is saturated with critical events.
type Manager struct {
	mu      sync.Mutex
	queue   []events.Event
	maxSize int
	sinks   []Sink
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	log     *logging.Logger
}

// NewManager builds a Manager with the given sinks and starts its drain
// goroutine. maxSize <= 0 defaults to 256.
func NewManager(sinks []Sink, maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = 256
	}
	m := &Manager{
		sinks:   sinks,
		maxSize: maxSize,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     logging.Default().WithComponent("notify"),
	}
	go m.run()
	return m
}

// Subscribe wires the Manager as the event bus's catch-all subscriber.
func (m *Manager) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(m.enqueue)
}

// Close stops the drain goroutine, processing no further events.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
}

func (m *Manager) enqueue(e events.Event) {
	m.mu.Lock()
	if len(m.queue) >= m.maxSize {
		if idx := firstNonCritical(m.queue); idx >= 0 {
			m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
		} else if !e.Type.Critical() {
			m.mu.Unlock()
			return
		}
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func firstNonCritical(q []events.Event) int {
	for i, e := range q {
		if !e.Type.Critical() {
			return i
		}
	}
	return -1
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		var e events.Event
		have := false
		if len(m.queue) > 0 {
			e = m.queue[0]
			m.queue = m.queue[1:]
			have = true
		}
		m.mu.Unlock()

		if have {
			m.dispatch(e)
			continue
		}

		select {
		case <-m.stop:
			return
		case <-m.wake:
		}
	}
}

func (m *Manager) dispatch(e events.Event) {
	for _, sink := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := sink.Notify(ctx, e)
		cancel()
		if err != nil {
			m.log.WithError(err).WithField("sink", fmt.Sprintf("%T", sink)).Warn("notification sink failed")
		}
	}
}
