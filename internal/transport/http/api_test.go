package http

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
	"duel-trivia-service/internal/infra/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	auth *Authenticator
	t    *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	bank := app.NewQuestionBankWithRand(memory.NewStaticCatalog(domain.DefaultCatalog()), rand.New(rand.NewSource(1)))
	service := app.NewMatchService(memory.NewMatchStore(), bank, memory.NewNotifier(), app.Options{Logger: log})
	auth := NewAuthenticator([]byte("test-secret"))
	server := httptest.NewServer(NewRouter(NewAPI(service, auth, log), NewWSHandler(service, auth, log)))
	t.Cleanup(server.Close)
	return &testServer{Server: server, auth: auth, t: t}
}

func (s *testServer) token(player domain.Player) string {
	token, err := s.auth.Issue(player, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path string, player *domain.Player, body interface{}, out interface{}) int {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(s.t, err)
	if player != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*player))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

var (
	alice = domain.Player{ID: "u-alice", Name: "Alice"}
	bob   = domain.Player{ID: "u-bob", Name: "Bob"}
	carol = domain.Player{ID: "u-carol", Name: "Carol"}
)

func TestRESTMatchFlow(t *testing.T) {
	srv := newTestServer(t)

	var match domain.Match
	require.Equal(t, http.StatusCreated, srv.do("POST", "/api/matches", &alice, nil, &match))
	assert.Equal(t, domain.StatusWaiting, match.Status)

	var lobby []domain.Match
	require.Equal(t, http.StatusOK, srv.do("GET", "/api/lobby", &alice, nil, &lobby))
	assert.Empty(t, lobby, "own matches are hidden from the lobby")
	require.Equal(t, http.StatusOK, srv.do("GET", "/api/lobby", &bob, nil, &lobby))
	require.Len(t, lobby, 1)

	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/join", &alice, nil, nil))
	require.Equal(t, http.StatusOK, srv.do("POST", "/api/matches/"+match.ID+"/join", &bob, nil, &match))
	assert.Equal(t, domain.StatusActive, match.Status)
	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/join", &carol, nil, nil))

	var state domain.GameState
	require.Equal(t, http.StatusOK, srv.do("GET", "/api/matches/"+match.ID, &carol, nil, &state))
	require.NotNil(t, state.CurrentQuestion)
	q := *state.CurrentQuestion
	assert.Empty(t, q.CorrectAnswer)

	answer := catalogAnswer(t, q.Prompt)
	var outcome domain.AnswerOutcome
	require.Equal(t, http.StatusOK, srv.do("POST", "/api/matches/"+match.ID+"/answers", &alice,
		map[string]interface{}{"questionId": q.ID, "answer": answer, "responseTimeMs": 900}, &outcome))
	assert.True(t, outcome.Correct)
	assert.True(t, outcome.Scored)
	assert.Equal(t, 1, outcome.State.Player1.Score)

	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/answers", &carol,
		map[string]interface{}{"questionId": q.ID, "answer": answer}, nil))
	assert.Equal(t, http.StatusBadRequest, srv.do("POST", "/api/matches/"+match.ID+"/answers", &alice, nil, nil))
	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/advance", &carol,
		map[string]interface{}{"fromIndex": 0}, nil), "spectators cannot advance")

	require.Equal(t, http.StatusOK, srv.do("POST", "/api/matches/"+match.ID+"/advance", &bob,
		map[string]interface{}{"fromIndex": 0}, &state))
	assert.Equal(t, 1, state.CurrentQuestionIndex)
	require.Equal(t, http.StatusOK, srv.do("POST", "/api/matches/"+match.ID+"/advance", &alice,
		map[string]interface{}{"fromIndex": 0}, &state))
	assert.Equal(t, 1, state.CurrentQuestionIndex, "second client's stale advance is ignored")

	for i := 1; i < domain.DefaultQuestionCount; i++ {
		require.Equal(t, http.StatusOK, srv.do("POST", "/api/matches/"+match.ID+"/advance", &alice, nil, &state))
	}
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, alice.ID, state.Winner)
	assert.Nil(t, state.CurrentQuestion)

	var mine []domain.Match
	require.Equal(t, http.StatusOK, srv.do("GET", "/api/me/matches", &bob, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, domain.StatusCompleted, mine[0].Status)
}

func TestRESTErrors(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, srv.do("POST", "/api/matches", nil, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do("GET", "/api/matches/missing", &alice, nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do("POST", "/api/matches/missing/join", &alice, nil, nil))

	var match domain.Match
	require.Equal(t, http.StatusCreated, srv.do("POST", "/api/matches", &alice, nil, &match))
	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/advance", &alice, nil, nil))
	assert.Equal(t, http.StatusConflict, srv.do("POST", "/api/matches/"+match.ID+"/answers", &alice,
		map[string]interface{}{"questionId": "q", "answer": "a"}, nil))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrInsufficientQuestions))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.Unavailable("op", io.EOF)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrNotParticipant))
}

func catalogAnswer(t *testing.T, prompt string) string {
	t.Helper()
	for _, item := range domain.DefaultCatalog() {
		if item.Prompt == prompt {
			return item.CorrectAnswer
		}
	}
	t.Fatalf("prompt %q not in catalog", prompt)
	return ""
}
