package http

import (
	"sync"

	"audience-quiz-service/internal/domain"
)

// Hub routes outbound events to the websocket clients of each presentation.
// It implements app.Broadcaster: started/ended events go to the whole room,
// live tally updates go to presenter connections only. The hub knows nothing
// about quiz semantics; it only fans out by presentation.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.presentationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.presentationID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.presentationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.presentationID)
	}
}

func (h *Hub) QuizStarted(presentationID string, ev domain.QuizStartedEvent) {
	h.send(presentationID, false, outboundMessage[any]{Type: "quiz-started", Payload: ev})
}

func (h *Hub) ResultsUpdated(presentationID string, ev domain.ResultsUpdatedEvent) {
	h.send(presentationID, true, outboundMessage[any]{Type: "quiz-results-updated", Payload: ev})
}

func (h *Hub) QuizEnded(presentationID string, ev domain.QuizEndedEvent) {
	h.send(presentationID, false, outboundMessage[any]{Type: "quiz-ended", Payload: ev})
}

func (h *Hub) leaderboardData(presentationID string, payload any) {
	h.send(presentationID, true, outboundMessage[any]{Type: "leaderboard-data", Payload: payload})
}

func (h *Hub) send(presentationID string, presentersOnly bool, msg outboundMessage[any]) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[presentationID] {
		if presentersOnly && !c.presenter {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Slow client: drop this event rather than block the room.
		}
	}
}
