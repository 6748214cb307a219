package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MatchStore is the session store: durable match and question records.
//
// Every mutating method is a single atomic, field-scoped update in the backend:
// JoinMatch only succeeds while the match is waiting, AwardAnswer sets
// answered-by only when it is unset and increments the scorer in the same step,
// AdvanceQuestion only moves the index if it still equals from.
type MatchStore interface {
	CreateMatch(ctx context.Context, match domain.Match) (domain.Match, error)
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	JoinMatch(ctx context.Context, matchID string, joiner domain.Player, at time.Time) (domain.Match, error)
	// SaveQuestions stores the set unless the match already has one; it returns the stored set.
	SaveQuestions(ctx context.Context, matchID string, questions []domain.Question) ([]domain.Question, error)
	ListQuestions(ctx context.Context, matchID string) ([]domain.Question, error)
	AwardAnswer(ctx context.Context, matchID, questionID string, seat domain.Seat, playerID string, at time.Time) (bool, error)
	AdvanceQuestion(ctx context.Context, matchID string, from, total int, at time.Time) (domain.Match, error)
	ListMatchesByStatus(ctx context.Context, status domain.MatchStatus) ([]domain.Match, error)
	ListMatchesForPlayer(ctx context.Context, playerID string) ([]domain.Match, error)
}

// Options tunes a MatchService.
type Options struct {
	QuestionCount int
	TimeLimit     time.Duration
	Logger        logrus.FieldLogger
	Clock         func() time.Time
}

// MatchService is the session engine: it drives a match from creation to completion.
type MatchService struct {
	store         MatchStore
	bank          *QuestionBank
	notifier      Notifier
	log           logrus.FieldLogger
	now           func() time.Time
	questionCount int
	timeLimit     time.Duration
}

func NewMatchService(store MatchStore, bank *QuestionBank, notifier Notifier, opts Options) *MatchService {
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = domain.DefaultQuestionCount
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &MatchService{
		store:         store,
		bank:          bank,
		notifier:      notifier,
		log:           opts.Logger.WithField("component", "engine"),
		now:           opts.Clock,
		questionCount: opts.QuestionCount,
		timeLimit:     opts.TimeLimit,
	}
}

// CreateMatch opens a waiting match owned by initiator.
func (s *MatchService) CreateMatch(ctx context.Context, initiator domain.Player) (domain.Match, error) {
	if initiator.ID == "" {
		return domain.Match{}, domain.ErrUnauthorized
	}
	now := s.now().UTC()
	match, err := s.store.CreateMatch(ctx, domain.Match{
		ID:          uuid.NewString(),
		Player1ID:   initiator.ID,
		Player1Name: initiator.Name,
		Status:      domain.StatusWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Match{}, fmt.Errorf("create match: %w", err)
	}
	s.log.WithFields(logrus.Fields{"match_id": match.ID, "player_id": initiator.ID}).Info("match created")
	s.publish(ctx, match.ID)
	return match, nil
}

// JoinMatch seats joiner as player two, activates the match and attaches its question set.
// A player two who joins again gets the match back, with its question set restored if
// an earlier join stopped short of saving it.
func (s *MatchService) JoinMatch(ctx context.Context, matchID string, joiner domain.Player) (domain.Match, error) {
	if joiner.ID == "" {
		return domain.Match{}, domain.ErrUnauthorized
	}
	current, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	switch {
	case current.Player1ID == joiner.ID:
		return domain.Match{}, domain.ErrCannotJoinOwnMatch
	case current.Player2ID == joiner.ID && current.Status != domain.StatusWaiting:
		if _, err := s.ensureQuestions(ctx, current); err != nil {
			return domain.Match{}, err
		}
		return current, nil
	case !current.SeatOpen():
		return domain.Match{}, domain.ErrMatchNotJoinable
	}

	// Draw before joining so an empty catalog never leaves an active match without questions.
	items, err := s.bank.DrawQuestionSet(ctx, s.questionCount)
	if err != nil {
		return domain.Match{}, err
	}

	match, err := s.store.JoinMatch(ctx, matchID, joiner, s.now().UTC())
	if err != nil {
		return domain.Match{}, err
	}
	if _, err := s.store.SaveQuestions(ctx, matchID, NewQuestionSet(matchID, items)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"match_id": matchID, "player_id": joiner.ID}).
			Error("match joined without a question set")
		return domain.Match{}, fmt.Errorf("save questions: %w", err)
	}

	s.log.WithFields(logrus.Fields{"match_id": matchID, "player_id": joiner.ID}).Info("match joined")
	s.publish(ctx, matchID)
	return match, nil
}

// ensureQuestions returns the question set of an active match, drawing and saving
// one if the match has none.
func (s *MatchService) ensureQuestions(ctx context.Context, match domain.Match) ([]domain.Question, error) {
	questions, err := s.store.ListQuestions(ctx, match.ID)
	if err != nil || len(questions) > 0 || match.Status == domain.StatusWaiting {
		return questions, err
	}
	items, err := s.bank.DrawQuestionSet(ctx, s.questionCount)
	if err != nil {
		return nil, err
	}
	questions, err = s.store.SaveQuestions(ctx, match.ID, NewQuestionSet(match.ID, items))
	if err != nil {
		return nil, fmt.Errorf("save questions: %w", err)
	}
	s.log.WithField("match_id", match.ID).Warn("restored missing question set")
	s.publish(ctx, match.ID)
	return questions, nil
}

// SubmitAnswer checks answer against the question and scores the first correct responder.
// responseTime is accepted for clients that measure it but does not change the points awarded.
func (s *MatchService) SubmitAnswer(ctx context.Context, matchID, questionID, playerID, answer string, responseTime time.Duration) (domain.AnswerOutcome, error) {
	if playerID == "" {
		return domain.AnswerOutcome{}, domain.ErrUnauthorized
	}
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if match.Status != domain.StatusActive {
		return domain.AnswerOutcome{}, domain.ErrMatchNotActive
	}

	questions, err := s.ensureQuestions(ctx, match)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	question, found := findQuestion(questions, questionID)
	seat := match.SeatOf(playerID)

	if match.Ephemeral && (!found || seat == domain.NoSeat) {
		// A synthesized match cannot attribute the answer; report it without scoring.
		state := s.project(match, questions)
		return domain.AnswerOutcome{Correct: found && question.IsCorrect(answer), State: state}, nil
	}
	if seat == domain.NoSeat {
		return domain.AnswerOutcome{}, domain.ErrNotParticipant
	}
	if !found {
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	outcome := domain.AnswerOutcome{Correct: question.IsCorrect(answer)}
	if outcome.Correct && !question.Answered() {
		outcome.Scored, err = s.store.AwardAnswer(ctx, matchID, questionID, seat, playerID, s.now().UTC())
		if err != nil {
			return domain.AnswerOutcome{}, fmt.Errorf("award answer: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"match_id":      matchID,
		"question_id":   questionID,
		"player_id":     playerID,
		"correct":       outcome.Correct,
		"scored":        outcome.Scored,
		"response_time": responseTime,
	}).Debug("answer submitted")

	if outcome.Scored {
		s.publish(ctx, matchID)
	}
	outcome.State, err = s.GetGameState(ctx, matchID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	return outcome, nil
}

// AdvanceQuestion moves the match to the next question, completing it after the last one.
// Only the two seated players may advance.
func (s *MatchService) AdvanceQuestion(ctx context.Context, matchID, playerID string) (domain.GameState, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.GameState{}, err
	}
	return s.advance(ctx, match, playerID, match.CurrentQuestionIndex)
}

// AdvanceFrom advances only if the match is still on question from. Two clients whose
// timers expire together therefore move the match forward once.
func (s *MatchService) AdvanceFrom(ctx context.Context, matchID, playerID string, from int) (domain.GameState, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.GameState{}, err
	}
	return s.advance(ctx, match, playerID, from)
}

func (s *MatchService) advance(ctx context.Context, match domain.Match, playerID string, from int) (domain.GameState, error) {
	if playerID == "" {
		return domain.GameState{}, domain.ErrUnauthorized
	}
	if !match.Ephemeral && !match.HasPlayer(playerID) {
		return domain.GameState{}, domain.ErrNotParticipant
	}
	switch match.Status {
	case domain.StatusWaiting:
		return domain.GameState{}, domain.ErrMatchNotActive
	case domain.StatusCompleted:
		return s.GetGameState(ctx, match.ID)
	}

	updated, err := s.store.AdvanceQuestion(ctx, match.ID, from, s.questionCount, s.now().UTC())
	if err != nil {
		return domain.GameState{}, fmt.Errorf("advance question: %w", err)
	}
	if updated.CurrentQuestionIndex != match.CurrentQuestionIndex || updated.Status != match.Status {
		s.log.WithFields(logrus.Fields{
			"match_id":  match.ID,
			"player_id": playerID,
			"index":     updated.CurrentQuestionIndex,
			"status":    updated.Status,
		}).Info("question advanced")
		s.publish(ctx, match.ID)
	}
	return s.GetGameState(ctx, match.ID)
}

// GetGameState assembles the read model of a match. It has no side effects.
func (s *MatchService) GetGameState(ctx context.Context, matchID string) (domain.GameState, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.GameState{}, err
	}
	var questions []domain.Question
	if match.Status != domain.StatusWaiting {
		questions, err = s.store.ListQuestions(ctx, matchID)
		if err != nil {
			return domain.GameState{}, err
		}
	}
	return s.project(match, questions), nil
}

// ListOpenMatches returns matches still waiting for a second player, newest first.
func (s *MatchService) ListOpenMatches(ctx context.Context) ([]domain.Match, error) {
	return s.store.ListMatchesByStatus(ctx, domain.StatusWaiting)
}

// ListMatchesForPlayer returns every match playerID takes part in, newest first.
func (s *MatchService) ListMatchesForPlayer(ctx context.Context, playerID string) ([]domain.Match, error) {
	if playerID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.store.ListMatchesForPlayer(ctx, playerID)
}

// Subscribe registers onChange for change signals on matchID.
func (s *MatchService) Subscribe(ctx context.Context, matchID string, onChange func()) (Subscription, error) {
	if _, err := s.store.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	return s.notifier.Subscribe(ctx, matchID, onChange)
}

func (s *MatchService) publish(ctx context.Context, matchID string) {
	if err := s.notifier.Publish(ctx, matchID); err != nil {
		s.log.WithError(err).WithField("match_id", matchID).Warn("change notification failed")
	}
}

func (s *MatchService) project(match domain.Match, questions []domain.Question) domain.GameState {
	state := domain.GameState{
		MatchID: match.ID,
		Player1: domain.PlayerView{
			ID:    match.Player1ID,
			Name:  match.Player1Name,
			Score: match.Player1Score,
		},
		Status:               match.Status,
		CurrentQuestionIndex: match.CurrentQuestionIndex,
		Questions:            make([]domain.Question, len(questions)),
		QuestionCount:        s.questionCount,
		TimeLimitSeconds:     int(s.timeLimit / time.Second),
		Ephemeral:            match.Ephemeral,
		UpdatedAt:            match.UpdatedAt,
	}
	if match.Player2ID != "" || match.Player2Name != "" {
		state.Player2 = &domain.PlayerView{
			ID:    match.Player2ID,
			Name:  match.Player2Name,
			Score: match.Player2Score,
		}
	}
	if len(questions) > 0 {
		state.QuestionCount = len(questions)
	}

	for i, q := range questions {
		if match.Status != domain.StatusCompleted && !q.Answered() {
			q.CorrectAnswer = ""
		}
		state.Questions[i] = q
	}
	if idx := match.CurrentQuestionIndex; idx >= 0 && idx < len(state.Questions) {
		current := state.Questions[idx]
		state.CurrentQuestion = &current
	}

	if match.Status == domain.StatusCompleted {
		switch {
		case match.Player1Score > match.Player2Score:
			state.Winner = match.Player1ID
		case match.Player2Score > match.Player1Score:
			state.Winner = match.Player2ID
		}
	}
	return state
}

func findQuestion(questions []domain.Question, questionID string) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

// IsClientError reports whether err is a caller mistake rather than an engine failure.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState)
}
