package http

import (
	"encoding/json"
	"log"
	"net/http"

	"audience-quiz-service/internal/app"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.QuizService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type client struct {
	conn           *websocket.Conn
	send           chan outboundMessage[any]
	presentationID string
	presenter      bool
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type slidePayload struct {
	SlideID string `json:"slideId"`
}

type answerPayload struct {
	SlideID   string `json:"slideId"`
	Answer    string `json:"answer"`
	LatencyMs int64  `json:"responseTime"`
}

type leaderboardPayload struct {
	Limit int `json:"limit"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// command surface. Presenters drive start/end and receive live tallies;
// participants submit answers and get their ack back on the same socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	presentationID := r.URL.Query().Get("presentationId")
	participantID := r.URL.Query().Get("participantId")
	displayName := r.URL.Query().Get("name")
	role := r.URL.Query().Get("role")
	if presentationID == "" {
		http.Error(w, "missing presentationId", http.StatusBadRequest)
		return
	}
	presenter := role == "presenter"
	if !presenter && participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn:           conn,
		send:           make(chan outboundMessage[any], 16),
		presentationID: presentationID,
		presenter:      presenter,
	}
	h.hub.register(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, c, participantID, displayName, inbound)
	}

	// Unregister before closing send so the hub never writes to a closed
	// channel.
	h.hub.unregister(c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, c *client, participantID, displayName string, inbound inboundMessage) {
	ctx := r.Context()
	switch inbound.Type {
	case "start-quiz":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.sendError("invalid start-quiz payload")
			return
		}
		if _, err := h.service.StartQuiz(ctx, c.presentationID, payload.SlideID); err != nil {
			c.sendError(err.Error())
		}

	case "submit-answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.sendError("invalid submit-answer payload")
			return
		}
		ack, err := h.service.SubmitAnswer(ctx, app.SubmitRequest{
			PresentationID:  c.presentationID,
			SlideID:         payload.SlideID,
			ParticipantID:   participantID,
			ParticipantName: displayName,
			Answer:          payload.Answer,
			LatencyMs:       payload.LatencyMs,
		})
		if err != nil {
			// Rejections are participant-local; nothing is broadcast.
			c.sendError(err.Error())
			return
		}
		c.enqueue(outboundMessage[any]{Type: "quiz-answer-submitted", Payload: ack})

	case "end-quiz":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.sendError("invalid end-quiz payload")
			return
		}
		if _, err := h.service.EndQuiz(ctx, c.presentationID, payload.SlideID); err != nil {
			c.sendError(err.Error())
		}

	case "request-quiz-state":
		var payload slidePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.sendError("invalid request-quiz-state payload")
			return
		}
		c.enqueue(outboundMessage[any]{Type: "quiz-state", Payload: h.service.QuizState(payload.SlideID)})

	case "request-leaderboard":
		var payload leaderboardPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.sendError("invalid request-leaderboard payload")
				return
			}
		}
		leaderboard, err := h.service.Leaderboard(ctx, c.presentationID, payload.Limit)
		if err != nil {
			c.sendError("failed to fetch leaderboard")
			return
		}
		reply := map[string]any{"presentationId": c.presentationID, "leaderboard": leaderboard}
		c.enqueue(outboundMessage[any]{Type: "leaderboard-data", Payload: reply})
		h.hub.leaderboardData(c.presentationID, reply)

	case "request-cumulative-leaderboards":
		var payload leaderboardPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.sendError("invalid request-cumulative-leaderboards payload")
				return
			}
		}
		bySlide, final, err := h.service.CumulativeLeaderboards(ctx, c.presentationID, payload.Limit)
		if err != nil {
			c.sendError("failed to build cumulative leaderboards")
			return
		}
		c.enqueue(outboundMessage[any]{Type: "cumulative-leaderboards", Payload: map[string]any{
			"presentationId":      c.presentationID,
			"leaderboardsBySlide": bySlide,
			"finalLeaderboard":    final,
		}})

	default:
		c.sendError("unsupported message type")
	}
}

// enqueue never blocks: if the writer goroutine died on a broken connection
// while the buffer is full, the message is dropped instead of wedging the
// read loop.
func (c *client) enqueue(msg outboundMessage[any]) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) sendError(message string) {
	c.enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}})
}
