package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	srv := newTestServer(t)

	var match domain.Match
	if code := srv.do("POST", "/api/matches", &alice, nil, &match); code != http.StatusCreated {
		t.Fatalf("create match: %d", code)
	}

	aliceConn := dialWS(t, srv, match.ID, alice)
	state := readState(t, aliceConn)
	if state.Status != domain.StatusWaiting {
		t.Fatalf("expected waiting, got %s", state.Status)
	}

	if code := srv.do("POST", "/api/matches/"+match.ID+"/join", &bob, nil, nil); code != http.StatusOK {
		t.Fatalf("join: %d", code)
	}

	// Expect the join to be pushed to the connected creator.
	state = readState(t, aliceConn)
	if state.Status != domain.StatusActive || state.CurrentQuestion == nil {
		t.Fatalf("expected active state after join, got %+v", state)
	}

	q := state.CurrentQuestion
	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": q.ID,
			"answer":     catalogAnswer(t, q.Prompt),
		},
	}
	if err := aliceConn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	answerSeen := false
	scoreSeen := false
	for i := 0; i < 4 && !(answerSeen && scoreSeen); i++ {
		typ, payload := readNext(t, aliceConn)
		switch typ {
		case "answerResult":
			var res answerResult
			_ = json.Unmarshal(payload, &res)
			if !res.Correct || !res.Scored {
				t.Fatalf("expected scored answer, got %+v", res)
			}
			answerSeen = true
		case "state":
			var st domain.GameState
			_ = json.Unmarshal(payload, &st)
			if st.Player1.Score == 1 {
				scoreSeen = true
			}
		}
	}
	if !answerSeen || !scoreSeen {
		t.Fatalf("expected answerResult and updated state, got answerResult=%v state=%v", answerSeen, scoreSeen)
	}

	if err := aliceConn.WriteJSON(map[string]any{"type": "advance", "payload": map[string]any{"fromIndex": 0}}); err != nil {
		t.Fatalf("write advance: %v", err)
	}
	advanced := false
	for i := 0; i < 4 && !advanced; i++ {
		typ, payload := readNext(t, aliceConn)
		if typ != "state" {
			continue
		}
		var st domain.GameState
		_ = json.Unmarshal(payload, &st)
		advanced = st.CurrentQuestionIndex == 1
	}
	if !advanced {
		t.Fatalf("expected index 1 after advance")
	}
}

func TestWebSocketRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?matchId=x", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v %v", resp, err)
	}
	_, resp, err = websocket.DefaultDialer.Dial(base+"?matchId=missing&token="+srv.token(alice), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown match, got %v %v", resp, err)
	}
}

func TestWebSocketUnsupportedMessage(t *testing.T) {
	srv := newTestServer(t)
	var match domain.Match
	if code := srv.do("POST", "/api/matches", &alice, nil, &match); code != http.StatusCreated {
		t.Fatalf("create match: %d", code)
	}
	conn := dialWS(t, srv, match.ID, alice)
	readState(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if typ, _ := readNext(t, conn); typ != "error" {
		t.Fatalf("expected error message, got %s", typ)
	}
	if err := conn.WriteJSON(map[string]any{"type": "refresh"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if typ, _ := readNext(t, conn); typ != "state" {
		t.Fatalf("expected state after refresh, got %s", typ)
	}
}

func TestWebSocketSpectatorCannotAdvance(t *testing.T) {
	srv := newTestServer(t)
	var match domain.Match
	if code := srv.do("POST", "/api/matches", &alice, nil, &match); code != http.StatusCreated {
		t.Fatalf("create match: %d", code)
	}
	if code := srv.do("POST", "/api/matches/"+match.ID+"/join", &bob, nil, nil); code != http.StatusOK {
		t.Fatalf("join: %d", code)
	}

	conn := dialWS(t, srv, match.ID, carol)
	readState(t, conn)
	if err := conn.WriteJSON(map[string]any{"type": "advance"}); err != nil {
		t.Fatalf("write advance: %v", err)
	}
	typ, payload := readNext(t, conn)
	if typ != "error" || !strings.Contains(string(payload), "not in this match") {
		t.Fatalf("expected participant error, got %s %s", typ, payload)
	}

	var state domain.GameState
	if code := srv.do("GET", "/api/matches/"+match.ID, &alice, nil, &state); code != http.StatusOK {
		t.Fatalf("get state: %d", code)
	}
	if state.CurrentQuestionIndex != 0 {
		t.Fatalf("spectator moved the match to %d", state.CurrentQuestionIndex)
	}
}

func dialWS(t *testing.T, srv *testServer, matchID string, player domain.Player) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?matchId=" + matchID + "&token=" + srv.token(player)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) domain.GameState {
	t.Helper()
	for i := 0; i < 5; i++ {
		typ, payload := readNext(t, conn)
		if typ != "state" {
			continue
		}
		var state domain.GameState
		if err := json.Unmarshal(payload, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		return state
	}
	t.Fatalf("no state message received")
	return domain.GameState{}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}
