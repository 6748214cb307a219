package http

import (
	"encoding/json"
	"net/http"
	"time"

	"duel-trivia-service/internal/app"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSHandler streams game state to a participant and accepts answers and advances over the socket.
type WSHandler struct {
	service  *app.MatchService
	auth     *Authenticator
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.MatchService, auth *Authenticator, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		service: service,
		auth:    auth,
		log:     log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Scored     bool   `json:"scored"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades an authenticated request for ?matchId= and keeps the client's view current.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	player, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	matchID := r.URL.Query().Get("matchId")
	if matchID == "" {
		http.Error(w, "missing matchId", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	state, err := h.service.GetGameState(ctx, matchID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	log := h.log.WithFields(logrus.Fields{"match_id": matchID, "player_id": player.ID})

	changes := make(chan struct{}, 1)
	sub, err := h.service.Subscribe(ctx, matchID, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer sub.Unsubscribe()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case <-changes:
				state, err := h.service.GetGameState(ctx, matchID)
				if err != nil {
					log.WithError(err).Warn("refresh after change failed")
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: state}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	push(outboundMessage[any]{Type: "state", Payload: state})
	log.Debug("ws client connected")

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			outcome, err := h.service.SubmitAnswer(ctx, matchID, payload.QuestionID, player.ID, payload.Answer,
				time.Duration(payload.ResponseTimeMs)*time.Millisecond)
			if err != nil {
				push(h.errorMessage(log, err))
				continue
			}
			push(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID: payload.QuestionID,
				Correct:    outcome.Correct,
				Scored:     outcome.Scored,
			}})
			push(outboundMessage[any]{Type: "state", Payload: outcome.State})
		case "advance":
			var payload advanceRequest
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid advance payload"}})
					continue
				}
			}
			var err error
			if payload.FromIndex != nil {
				state, err = h.service.AdvanceFrom(ctx, matchID, player.ID, *payload.FromIndex)
			} else {
				state, err = h.service.AdvanceQuestion(ctx, matchID, player.ID)
			}
			if err != nil {
				push(h.errorMessage(log, err))
				continue
			}
			push(outboundMessage[any]{Type: "state", Payload: state})
		case "refresh":
			state, err = h.service.GetGameState(ctx, matchID)
			if err != nil {
				push(h.errorMessage(log, err))
				continue
			}
			push(outboundMessage[any]{Type: "state", Payload: state})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug("ws client disconnected")
}

func (h *WSHandler) errorMessage(log logrus.FieldLogger, err error) outboundMessage[any] {
	if !app.IsClientError(err) {
		log.WithError(err).Error("ws operation failed")
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
