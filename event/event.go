// Copyright 2026 OpenLease Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const EventQueueSize = 20

// EventTypeAll subscribes to every published event. The persisted event log
// uses this to capture the full ordered fact stream.
const EventTypeAll = EventType("*")

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

// Event is a single emitted fact. Seq is assigned at publish time from a
// global monotonic counter, so external indexers can reconstruct the exact
// commit order of state transitions.
type Event struct {
	Timestamp time.Time
	Data      any
	Id        string
	Type      EventType
	Seq       uint64
}

// EventBus delivers published facts to subscribers synchronously, in
// publish order. Marketplace operations publish from inside their critical
// sections, so facts for a given listing/offer are delivered in the exact
// order the corresponding transitions committed.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	logger      *slog.Logger
	metrics     struct {
		eventsTotal *prometheus.CounterVec
		subscribers *prometheus.GaugeVec
	}
	lastSubId EventSubscriberId
	lastSeq   uint64
	mu        sync.Mutex
}

type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		ch: make(chan Event, buffer),
	}
}

// deliver blocks on a full subscriber queue, preserving ordering over
// throughput. Delivery to a closed subscriber drops the event.
func (s *subscriber) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		logger:      logger,
	}
	promautoFactory := promauto.With(promRegistry)
	e.metrics.eventsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corral_events_total",
			Help: "total events published by type",
		},
		[]string{"type"},
	)
	e.metrics.subscribers = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corral_event_subscribers",
			Help: "current subscriber count by type",
		},
		[]string{"type"},
	)
	return e
}

// Subscribe allows a consumer to receive events of a particular type via a
// channel. Subscribing to EventTypeAll receives every event.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := newSubscriber(EventQueueSize)
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	return subId, sub.ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via
// a callback function. The callback runs on a dedicated goroutine and
// observes events in publish order.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for {
			evt, ok := <-evtCh
			if !ok {
				return
			}
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing
// subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var subToClose *subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if sub, ok2 := evtTypeSubs[subId]; ok2 {
			subToClose = sub
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
		}
	}
	e.mu.Unlock()

	if subToClose != nil {
		subToClose.close()
	}
}

// Publish stamps the fact with an id and the next global sequence number
// and delivers it to all matching subscribers before returning. The stamped
// event is returned so callers can persist or log it.
func (e *EventBus) Publish(eventType EventType, data any) Event {
	e.mu.Lock()
	e.lastSeq++
	evt := Event{
		Id:        uuid.NewString(),
		Seq:       e.lastSeq,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	subList := make([]*subscriber, 0)
	for _, sub := range e.subscribers[eventType] {
		subList = append(subList, sub)
	}
	for _, sub := range e.subscribers[EventTypeAll] {
		subList = append(subList, sub)
	}
	e.mu.Unlock()
	for _, sub := range subList {
		sub.deliver(evt)
	}
	e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	e.logger.Debug(
		"published event",
		"component", "eventbus",
		"type", eventType,
		"seq", evt.Seq,
	)
	return evt
}

// Stop closes all subscriber channels and clears the subscribers map. This
// ensures that SubscribeFunc goroutines exit cleanly during shutdown. The
// EventBus can still be reused after Stop() is called.
func (e *EventBus) Stop() {
	e.mu.Lock()
	subsCopy := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
	e.mu.Unlock()
	for _, evtTypeSubs := range subsCopy {
		for _, sub := range evtTypeSubs {
			sub.close()
		}
	}
	e.metrics.subscribers.Reset()
}
