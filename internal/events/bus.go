// Package events implements the in-process publish/subscribe bus that
// decouples the trading pipeline from its consumers (the notification
// fan-out in internal/notify, and the optional status surface).
package events

import (
	"sync"
	"time"
)

// EventType enumerates the lifecycle events the bot emits.
type EventType string

const (
	EventBotStarted   EventType = "BOT_STARTED"
	EventBotStopped   EventType = "BOT_STOPPED"
	EventTradeOpened  EventType = "TRADE_OPENED"
	EventTradeAdded   EventType = "TRADE_ADDED"
	EventPartialExit  EventType = "PARTIAL_EXIT"
	EventFullExit     EventType = "FULL_EXIT"
	EventError        EventType = "ERROR"
	EventDailySummary EventType = "DAILY_SUMMARY"
	EventHeartbeat    EventType = "HEARTBEAT"
)

// Critical reports whether an event type must never be dropped by a bounded
// consumer queue (see internal/notify). Any exit or error is critical.
func (t EventType) Critical() bool {
	switch t {
	case EventPartialExit, EventFullExit, EventError:
		return true
	default:
		return false
	}
}

// Event is one published occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Coin      string                 `json:"coin,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscriber handles one event. It must not block for long; the bus invokes
// subscribers in their own goroutine so a slow subscriber cannot stall
// publishing, but a permanently blocked subscriber leaks a goroutine per
// event; subscribers that need back-pressure should queue internally (see
// internal/notify.Manager).
type Subscriber func(Event)

// EventBus is a simple fan-out publish/subscribe bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish dispatches event to every matching subscriber. Publish itself
// never blocks on a subscriber.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a TradeOpened event.
func (eb *EventBus) PublishTradeOpened(coin string, price, qty float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Coin: coin,
		Data: map[string]interface{}{"price": price, "qty": qty},
	})
}

// PublishTradeAdded publishes a TradeAdded (pyramid fill) event.
func (eb *EventBus) PublishTradeAdded(coin string, price, qty float64, entryCount int) {
	eb.Publish(Event{
		Type: EventTradeAdded,
		Coin: coin,
		Data: map[string]interface{}{"price": price, "qty": qty, "entry_count": entryCount},
	})
}

// PublishPartialExit publishes a PartialExit event.
func (eb *EventBus) PublishPartialExit(coin string, qty, price, pnl float64, reason string) {
	eb.Publish(Event{
		Type: EventPartialExit,
		Coin: coin,
		Data: map[string]interface{}{"qty": qty, "price": price, "pnl": pnl, "reason": reason},
	})
}

// PublishFullExit publishes a FullExit event.
func (eb *EventBus) PublishFullExit(coin string, qty, price, pnl float64, reason string) {
	eb.Publish(Event{
		Type: EventFullExit,
		Coin: coin,
		Data: map[string]interface{}{"qty": qty, "price": price, "pnl": pnl, "reason": reason},
	})
}

// PublishError publishes an Error event.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{"source": source, "message": message}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{Type: EventError, Data: data})
}

// PublishDailySummary publishes a DailySummary event.
func (eb *EventBus) PublishDailySummary(tradesToday int, realizedPnLToday float64) {
	eb.Publish(Event{
		Type: EventDailySummary,
		Data: map[string]interface{}{"trades_today": tradesToday, "realized_pnl_today": realizedPnLToday},
	})
}

// PublishHeartbeat publishes the Scheduler's end-of-cycle liveness record.
func (eb *EventBus) PublishHeartbeat(cycleID string, coinsProcessed, coinsSkipped int) {
	eb.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{
			"cycle_id":        cycleID,
			"coins_processed": coinsProcessed,
			"coins_skipped":   coinsSkipped,
		},
	})
}
