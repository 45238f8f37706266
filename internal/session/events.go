package session

import "zone-detection-console/internal/models"

// EventType - вид изменения сессии
type EventType string

const (
	EventState          EventType = "session_state"
	EventFrame          EventType = "frame"
	EventStreamClosed   EventType = "stream_closed"
	EventTelemetryReset EventType = "telemetry_reset"
)

// Event - уведомление подписчиков об изменении
type Event struct {
	Type  EventType           `json:"type"`
	State *State              `json:"state,omitempty"`
	Frame *models.StreamFrame `json:"frame,omitempty"`
}

// Subscribe регистрирует обработчик событий и возвращает функцию отписки.
// Обработчик вызывается вне блокировки сессии и не должен блокироваться надолго.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Session) publish(event Event) {
	s.subMu.Lock()
	handlers := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		handlers = append(handlers, fn)
	}
	s.subMu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

// publishState рассылает снимок состояния; вызывается без s.mu
func (s *Session) publishState() {
	state := s.Snapshot()
	s.publish(Event{Type: EventState, State: &state})
}
