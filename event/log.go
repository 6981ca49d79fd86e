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
)

// LogStore persists appended events. Implementations must preserve append
// order.
type LogStore interface {
	AppendEvent(Event) error
}

// Log captures every event published on a bus into an ordered, replayable
// stream. This is the audit trail external indexers depend on: entries are
// appended in global sequence order and never removed. An optional LogStore
// receives each entry for persistence.
type Log struct {
	bus     *EventBus
	store   LogStore
	logger  *slog.Logger
	entries []Event
	subId   EventSubscriberId
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

func NewLog(bus *EventBus, store LogStore, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	l := &Log{
		bus:    bus,
		store:  store,
		logger: logger,
	}
	subId, evtCh := bus.Subscribe(EventTypeAll)
	l.subId = subId
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			evt, ok := <-evtCh
			if !ok {
				return
			}
			l.append(evt)
		}
	}()
	return l
}

func (l *Log) append(evt Event) {
	l.mu.Lock()
	l.entries = append(l.entries, evt)
	l.mu.Unlock()
	if l.store != nil {
		if err := l.store.AppendEvent(evt); err != nil {
			l.logger.Error(
				"failed to persist event",
				"component", "eventlog",
				"type", evt.Type,
				"seq", evt.Seq,
				"error", err,
			)
		}
	}
}

// Entries returns a copy of the captured stream in append order
func (l *Log) Entries() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]Event, len(l.entries))
	copy(ret, l.entries)
	return ret
}

// Replay invokes fn for each captured event in append order, stopping at
// the first error
func (l *Log) Replay(fn func(Event) error) error {
	for _, evt := range l.Entries() {
		if err := fn(evt); err != nil {
			return err
		}
	}
	return nil
}

// Close unsubscribes from the bus and waits for the capture goroutine to
// drain
func (l *Log) Close() {
	l.bus.Unsubscribe(EventTypeAll, l.subId)
	l.wg.Wait()
}
