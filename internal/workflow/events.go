package workflow

import "github.com/email-verifier/console/internal/models"

// EventType distinguishes subscriber events.
type EventType string

const (
	// EventState carries a new snapshot after every transition.
	EventState EventType = "state"
	// EventOpen asks the renderer to open a result locator.
	EventOpen EventType = "open"
)

// Event is delivered to subscribers.
type Event struct {
	Type    EventType        `json:"type"`
	State   *models.Snapshot `json:"state,omitempty"`
	Locator string           `json:"locator,omitempty"`
}

const subscriberBuffer = 16

type subscribers struct {
	next int
	subs map[int]chan Event
}

func (s *subscribers) add() (int, chan Event) {
	if s.subs == nil {
		s.subs = make(map[int]chan Event)
	}
	s.next++
	ch := make(chan Event, subscriberBuffer)
	s.subs[s.next] = ch
	return s.next, ch
}

func (s *subscribers) remove(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// send never blocks. A full subscriber loses its oldest pending event.
func (s *subscribers) send(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	for id := range s.subs {
		s.remove(id)
	}
}
