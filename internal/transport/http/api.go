package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// API exposes the match operations as JSON over HTTP.
type API struct {
	service *app.MatchService
	auth    *Authenticator
	log     logrus.FieldLogger
}

func NewAPI(service *app.MatchService, auth *Authenticator, log logrus.FieldLogger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{service: service, auth: auth, log: log.WithField("component", "api")}
}

// NewRouter wires the REST routes, the websocket endpoint and the health check.
func NewRouter(api *API, ws *WSHandler) http.Handler {
	router := httprouter.New()
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		api.log.WithField("path", r.URL.Path).Errorf("panic: %v", v)
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "internal server error"})
	}

	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Write([]byte("ok"))
	})
	router.POST("/api/matches", api.authed(api.createMatch))
	router.GET("/api/lobby", api.authed(api.listOpen))
	router.GET("/api/me/matches", api.authed(api.listMine))
	router.GET("/api/matches/:id", api.authed(api.getState))
	router.POST("/api/matches/:id/join", api.authed(api.joinMatch))
	router.POST("/api/matches/:id/answers", api.authed(api.submitAnswer))
	router.POST("/api/matches/:id/advance", api.authed(api.advance))
	router.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)
	return router
}

type authedHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, player domain.Player)

func (a *API) authed(next authedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		player, err := a.auth.Authenticate(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next(w, r, ps, player)
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

type answerRequest struct {
	QuestionID     string `json:"questionId"`
	Answer         string `json:"answer"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

type advanceRequest struct {
	FromIndex *int `json:"fromIndex"`
}

var errBadRequest = errors.New("bad request")

func (a *API) createMatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params, player domain.Player) {
	match, err := a.service.CreateMatch(r.Context(), player)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (a *API) listOpen(w http.ResponseWriter, r *http.Request, _ httprouter.Params, player domain.Player) {
	matches, err := a.service.ListOpenMatches(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	open := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Player1ID != player.ID {
			open = append(open, m)
		}
	}
	writeJSON(w, http.StatusOK, open)
}

func (a *API) listMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params, player domain.Player) {
	matches, err := a.service.ListMatchesForPlayer(r.Context(), player.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *API) getState(w http.ResponseWriter, r *http.Request, ps httprouter.Params, _ domain.Player) {
	state, err := a.service.GetGameState(r.Context(), ps.ByName("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) joinMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params, player domain.Player) {
	match, err := a.service.JoinMatch(r.Context(), ps.ByName("id"), player)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request, ps httprouter.Params, player domain.Player) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil || req.QuestionID == "" {
		a.fail(w, r, errBadRequest)
		return
	}
	outcome, err := a.service.SubmitAnswer(r.Context(), ps.ByName("id"), req.QuestionID, player.ID, req.Answer,
		time.Duration(req.ResponseTimeMs)*time.Millisecond)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) advance(w http.ResponseWriter, r *http.Request, ps httprouter.Params, player domain.Player) {
	var req advanceRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, errBadRequest)
		return
	}
	var (
		state domain.GameState
		err   error
	)
	if req.FromIndex != nil {
		state, err = a.service.AdvanceFrom(r.Context(), ps.ByName("id"), player.ID, *req.FromIndex)
	} else {
		state, err = a.service.AdvanceQuestion(r.Context(), ps.ByName("id"), player.ID)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		message = "internal server error"
	}
	writeJSON(w, status, errorPayload{Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientQuestions), errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
