package session

import (
	"log/slog"
	"time"
)

// EventType names an event published to subscribers.
type EventType string

const (
	EventStatusChanged     EventType = "status-changed"
	EventRecordingStarted  EventType = "recording-started"
	EventRecordingComplete EventType = "recording-complete"
	EventRecordingError    EventType = "recording-error"
	EventHistoryUpdated    EventType = "history-updated"
	EventModesChanged      EventType = "modes-changed"
)

// Event is a transition notification. Status is the snapshot stored just
// before the event was published.
type Event struct {
	Type      EventType `json:"type"`
	Status    Status    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	HistoryID string    `json:"history_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Warning   string    `json:"warning,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Subscribe registers a listener with a buffer of size buf. Events that do
// not fit are dropped for that listener. Call the returned func to
// unsubscribe; it closes the channel.
func (m *Machine) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once bool
	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subs, id)
		close(ch)
	}
}

// Announce publishes an event raised outside the machine, such as a mode
// file change or a history deletion.
func (m *Machine) Announce(t EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish(Event{Type: t})
}

// publish fans ev out without blocking. Callers hold mu so events leave in
// transition order.
func (m *Machine) publish(ev Event) {
	ev.Status = m.Status()
	ev.At = time.Now()

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("[Session] subscriber too slow, dropping event", "subscriber", id, "event", ev.Type)
		}
	}
}
