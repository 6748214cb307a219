package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"duel-trivia-service/internal/domain"
)

// MatchStore is an in-memory implementation of app.MatchStore. A single mutex
// makes every conditional update atomic.
type MatchStore struct {
	mu        sync.RWMutex
	matches   map[string]*domain.Match
	questions map[string][]domain.Question
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches:   make(map[string]*domain.Match),
		questions: make(map[string][]domain.Question),
	}
}

func (s *MatchStore) CreateMatch(_ context.Context, match domain.Match) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.ID]; ok {
		return domain.Match{}, fmt.Errorf("match %s already exists", match.ID)
	}
	stored := match
	s.matches[match.ID] = &stored
	return stored, nil
}

func (s *MatchStore) GetMatch(_ context.Context, matchID string) (domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[matchID]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return *match, nil
}

func (s *MatchStore) JoinMatch(_ context.Context, matchID string, joiner domain.Player, at time.Time) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	switch {
	case !ok:
		return domain.Match{}, domain.ErrMatchNotFound
	case match.Player1ID == joiner.ID:
		return domain.Match{}, domain.ErrCannotJoinOwnMatch
	case !match.SeatOpen():
		return domain.Match{}, domain.ErrMatchNotJoinable
	}
	match.Player2ID = joiner.ID
	match.Player2Name = joiner.Name
	match.Status = domain.StatusActive
	match.UpdatedAt = at
	return *match, nil
}

func (s *MatchStore) SaveQuestions(_ context.Context, matchID string, questions []domain.Question) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return nil, domain.ErrMatchNotFound
	}
	if existing := s.questions[matchID]; len(existing) > 0 {
		return copyQuestions(existing), nil
	}
	stored := copyQuestions(questions)
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Position < stored[j].Position })
	s.questions[matchID] = stored
	return copyQuestions(stored), nil
}

func (s *MatchStore) ListQuestions(_ context.Context, matchID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.matches[matchID]; !ok {
		return nil, domain.ErrMatchNotFound
	}
	return copyQuestions(s.questions[matchID]), nil
}

func (s *MatchStore) AwardAnswer(_ context.Context, matchID, questionID string, seat domain.Seat, playerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return false, domain.ErrMatchNotFound
	}
	questions := s.questions[matchID]
	for i := range questions {
		if questions[i].ID != questionID {
			continue
		}
		if questions[i].Answered() {
			return false, nil
		}
		answeredAt := at
		questions[i].AnsweredBy = playerID
		questions[i].AnsweredAt = &answeredAt
		switch seat {
		case domain.SeatOne:
			match.Player1Score++
		case domain.SeatTwo:
			match.Player2Score++
		}
		match.UpdatedAt = at
		return true, nil
	}
	return false, domain.ErrQuestionNotFound
}

func (s *MatchStore) AdvanceQuestion(_ context.Context, matchID string, from, total int, at time.Time) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if match.Status != domain.StatusActive || match.CurrentQuestionIndex != from {
		return *match, nil
	}
	match.CurrentQuestionIndex++
	if match.CurrentQuestionIndex >= total {
		match.Status = domain.StatusCompleted
	}
	match.UpdatedAt = at
	return *match, nil
}

func (s *MatchStore) ListMatchesByStatus(_ context.Context, status domain.MatchStatus) ([]domain.Match, error) {
	return s.filter(func(m *domain.Match) bool { return m.Status == status }), nil
}

func (s *MatchStore) ListMatchesForPlayer(_ context.Context, playerID string) ([]domain.Match, error) {
	return s.filter(func(m *domain.Match) bool { return m.HasPlayer(playerID) }), nil
}

func (s *MatchStore) filter(keep func(*domain.Match) bool) []domain.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Match, 0)
	for _, m := range s.matches {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyQuestions(in []domain.Question) []domain.Question {
	out := make([]domain.Question, len(in))
	copy(out, in)
	return out
}
