package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	defaultSnapshotLimit   = 1024
	defaultRetainCompleted = 256
)

// ResilientStore keeps the user-visible flow going when the primary store is down.
//
// Every record the primary returns is remembered in a bounded snapshot. While the
// primary fails with domain.ErrStorageUnavailable, known matches are served from
// that snapshot: answers are checked but not scored and advancing moves the
// snapshot forward without persisting anything. Once the primary answers again
// its records win.
//
// Matches the primary never returned are synthesized in the fallback store as
// ephemeral records with a placeholder opponent and a freshly drawn question set.
// Ephemeral state is not shared between processes, so two players only see the
// same match while the primary store works.
type ResilientStore struct {
	primary       MatchStore
	fallback      MatchStore
	bank          *QuestionBank
	questionCount int
	log           logrus.FieldLogger
	now           func() time.Time

	snapshotLimit   int
	retainCompleted int

	mu        sync.Mutex
	local     map[string]struct{}
	retired   []string
	snapshots map[string]*snapshot
	order     []string
}

type snapshot struct {
	match     domain.Match
	questions []domain.Question
}

func NewResilientStore(primary, fallback MatchStore, bank *QuestionBank, questionCount int, log logrus.FieldLogger) *ResilientStore {
	if questionCount <= 0 {
		questionCount = domain.DefaultQuestionCount
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResilientStore{
		primary:         primary,
		fallback:        fallback,
		bank:            bank,
		questionCount:   questionCount,
		log:             log.WithField("component", "resilient_store"),
		now:             time.Now,
		snapshotLimit:   defaultSnapshotLimit,
		retainCompleted: defaultRetainCompleted,
		local:           make(map[string]struct{}),
		snapshots:       make(map[string]*snapshot),
	}
}

// IsEphemeral reports whether matchID is served from the fallback store.
func (r *ResilientStore) IsEphemeral(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.local[matchID]
	return ok
}

func (r *ResilientStore) CreateMatch(ctx context.Context, match domain.Match) (domain.Match, error) {
	created, err := r.primary.CreateMatch(ctx, match)
	if !r.degraded("create_match", match.ID, err) {
		if err == nil {
			r.remember(created)
		}
		return created, err
	}
	match.Ephemeral = true
	created, err = r.fallback.CreateMatch(ctx, match)
	if err != nil {
		return domain.Match{}, err
	}
	r.markLocal(match.ID)
	return created, nil
}

func (r *ResilientStore) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	if r.IsEphemeral(matchID) {
		return r.fallback.GetMatch(ctx, matchID)
	}
	match, err := r.primary.GetMatch(ctx, matchID)
	if !r.degraded("get_match", matchID, err) {
		if err == nil {
			r.remember(match)
		}
		return match, err
	}
	if snap, ok := r.snapshot(matchID); ok {
		return snap.match, nil
	}
	if err := r.synthesize(ctx, matchID, domain.StatusActive); err != nil {
		return domain.Match{}, err
	}
	return r.fallback.GetMatch(ctx, matchID)
}

func (r *ResilientStore) JoinMatch(ctx context.Context, matchID string, joiner domain.Player, at time.Time) (domain.Match, error) {
	if r.IsEphemeral(matchID) {
		return r.fallback.JoinMatch(ctx, matchID, joiner, at)
	}
	match, err := r.primary.JoinMatch(ctx, matchID, joiner, at)
	if !r.degraded("join_match", matchID, err) {
		if err == nil {
			r.remember(match)
		}
		return match, err
	}
	// A join cannot be recorded durably, so the match continues as an ephemeral copy.
	if snap, ok := r.snapshot(matchID); ok {
		err = r.adopt(ctx, snap)
	} else {
		err = r.synthesize(ctx, matchID, domain.StatusWaiting)
	}
	if err != nil {
		return domain.Match{}, err
	}
	return r.fallback.JoinMatch(ctx, matchID, joiner, at)
}

func (r *ResilientStore) SaveQuestions(ctx context.Context, matchID string, questions []domain.Question) ([]domain.Question, error) {
	if r.IsEphemeral(matchID) {
		return r.fallback.SaveQuestions(ctx, matchID, questions)
	}
	saved, err := r.primary.SaveQuestions(ctx, matchID, questions)
	if !r.degraded("save_questions", matchID, err) {
		if err == nil {
			r.rememberQuestions(matchID, saved)
		}
		return saved, err
	}
	if _, ok := r.snapshot(matchID); ok {
		return r.keepQuestions(matchID, questions), nil
	}
	if err := r.synthesize(ctx, matchID, domain.StatusActive); err != nil {
		return nil, err
	}
	return r.fallback.SaveQuestions(ctx, matchID, questions)
}

func (r *ResilientStore) ListQuestions(ctx context.Context, matchID string) ([]domain.Question, error) {
	if r.IsEphemeral(matchID) {
		return r.fallback.ListQuestions(ctx, matchID)
	}
	questions, err := r.primary.ListQuestions(ctx, matchID)
	if !r.degraded("list_questions", matchID, err) {
		if err == nil {
			r.rememberQuestions(matchID, questions)
		}
		return questions, err
	}
	if snap, ok := r.snapshot(matchID); ok {
		if len(snap.questions) == 0 && snap.match.Status != domain.StatusWaiting {
			return nil, err
		}
		return snap.questions, nil
	}
	if err := r.synthesize(ctx, matchID, domain.StatusActive); err != nil {
		return nil, err
	}
	return r.fallback.ListQuestions(ctx, matchID)
}

func (r *ResilientStore) AwardAnswer(ctx context.Context, matchID, questionID string, seat domain.Seat, playerID string, at time.Time) (bool, error) {
	if r.IsEphemeral(matchID) {
		return r.fallback.AwardAnswer(ctx, matchID, questionID, seat, playerID, at)
	}
	awarded, err := r.primary.AwardAnswer(ctx, matchID, questionID, seat, playerID, at)
	if !r.degraded("award_answer", matchID, err) {
		return awarded, err
	}
	// Scores only change in the primary; a known match keeps its last state.
	if _, ok := r.snapshot(matchID); ok {
		return false, nil
	}
	// A synthesized match has its own question ids, so this answer cannot be attributed.
	if err := r.synthesize(ctx, matchID, domain.StatusActive); err != nil {
		return false, err
	}
	return false, nil
}

func (r *ResilientStore) AdvanceQuestion(ctx context.Context, matchID string, from, total int, at time.Time) (domain.Match, error) {
	if r.IsEphemeral(matchID) {
		match, err := r.fallback.AdvanceQuestion(ctx, matchID, from, total, at)
		if err == nil && match.Status == domain.StatusCompleted {
			r.retire(matchID)
		}
		return match, err
	}
	match, err := r.primary.AdvanceQuestion(ctx, matchID, from, total, at)
	if !r.degraded("advance_question", matchID, err) {
		if err == nil {
			r.remember(match)
		}
		return match, err
	}
	if derived, ok := r.advanceSnapshot(matchID, from, total, at); ok {
		return derived, nil
	}
	if err := r.synthesize(ctx, matchID, domain.StatusActive); err != nil {
		return domain.Match{}, err
	}
	return r.fallback.AdvanceQuestion(ctx, matchID, from, total, at)
}

func (r *ResilientStore) ListMatchesByStatus(ctx context.Context, status domain.MatchStatus) ([]domain.Match, error) {
	return r.list("list_by_status", func(store MatchStore) ([]domain.Match, error) {
		return store.ListMatchesByStatus(ctx, status)
	})
}

func (r *ResilientStore) ListMatchesForPlayer(ctx context.Context, playerID string) ([]domain.Match, error) {
	return r.list("list_for_player", func(store MatchStore) ([]domain.Match, error) {
		return store.ListMatchesForPlayer(ctx, playerID)
	})
}

// list merges primary results with ephemeral matches; an unavailable primary contributes nothing.
func (r *ResilientStore) list(op string, query func(MatchStore) ([]domain.Match, error)) ([]domain.Match, error) {
	matches, err := query(r.primary)
	if r.degraded(op, "", err) {
		matches = nil
	} else if err != nil {
		return nil, err
	}
	local, err := query(r.fallback)
	if err != nil {
		return nil, err
	}
	matches = append(matches, local...)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func (r *ResilientStore) degraded(op, matchID string, err error) bool {
	if err == nil || !errors.Is(err, domain.ErrStorageUnavailable) {
		return false
	}
	entry := r.log.WithError(err).WithField("op", op)
	if matchID != "" {
		entry = entry.WithField("match_id", matchID)
	}
	entry.Warn("session store unavailable, serving degraded state")
	return true
}

// synthesize seeds the fallback store with a placeholder record for matchID.
func (r *ResilientStore) synthesize(ctx context.Context, matchID string, status domain.MatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.local[matchID]; ok {
		return nil
	}

	now := r.now().UTC()
	match := domain.Match{
		ID:          matchID,
		Player1Name: "Player 1",
		Status:      status,
		Ephemeral:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == domain.StatusActive {
		match.Player2Name = "Player 2"
	}
	if _, err := r.fallback.CreateMatch(ctx, match); err != nil {
		return err
	}
	if status == domain.StatusActive {
		items, err := r.bank.DrawQuestionSet(ctx, r.questionCount)
		if err != nil {
			return err
		}
		if _, err := r.fallback.SaveQuestions(ctx, matchID, NewQuestionSet(matchID, items)); err != nil {
			return err
		}
	}
	r.local[matchID] = struct{}{}
	return nil
}

// adopt copies a remembered match into the fallback store and serves it from there.
func (r *ResilientStore) adopt(ctx context.Context, snap snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.local[snap.match.ID]; ok {
		return nil
	}
	match := snap.match
	match.Ephemeral = true
	if _, err := r.fallback.CreateMatch(ctx, match); err != nil {
		return err
	}
	if len(snap.questions) > 0 {
		if _, err := r.fallback.SaveQuestions(ctx, match.ID, snap.questions); err != nil {
			return err
		}
	}
	r.local[match.ID] = struct{}{}
	r.forget(match.ID)
	return nil
}

func (r *ResilientStore) markLocal(matchID string) {
	r.mu.Lock()
	r.local[matchID] = struct{}{}
	r.mu.Unlock()
}

// retire lets a completed ephemeral match age out; only the most recent
// retainCompleted ids stay routed to the fallback store.
func (r *ResilientStore) retire(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.retired {
		if id == matchID {
			return
		}
	}
	r.retired = append(r.retired, matchID)
	for len(r.retired) > r.retainCompleted {
		delete(r.local, r.retired[0])
		r.retired = r.retired[1:]
	}
}

func (r *ResilientStore) snapshot(matchID string) (snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[matchID]
	if !ok {
		return snapshot{}, false
	}
	return snapshot{match: snap.match, questions: copyQuestions(snap.questions)}, true
}

func (r *ResilientStore) remember(match domain.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(match.ID).match = match
}

func (r *ResilientStore) rememberQuestions(matchID string, questions []domain.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.snapshots[matchID]; ok {
		snap.questions = copyQuestions(questions)
	}
}

// keepQuestions attaches questions to a remembered match unless it already has a set.
func (r *ResilientStore) keepQuestions(matchID string, questions []domain.Question) []domain.Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.entry(matchID)
	if len(snap.questions) == 0 {
		snap.questions = copyQuestions(questions)
	}
	return copyQuestions(snap.questions)
}

func (r *ResilientStore) advanceSnapshot(matchID string, from, total int, at time.Time) (domain.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[matchID]
	if !ok {
		return domain.Match{}, false
	}
	match := &snap.match
	if match.Status == domain.StatusActive && match.CurrentQuestionIndex == from {
		match.CurrentQuestionIndex++
		if match.CurrentQuestionIndex >= total {
			match.Status = domain.StatusCompleted
		}
		match.UpdatedAt = at
	}
	return *match, true
}

// entry returns the snapshot for matchID, evicting the oldest one when full. Callers hold r.mu.
func (r *ResilientStore) entry(matchID string) *snapshot {
	if snap, ok := r.snapshots[matchID]; ok {
		return snap
	}
	snap := &snapshot{match: domain.Match{ID: matchID}}
	r.snapshots[matchID] = snap
	r.order = append(r.order, matchID)
	for len(r.order) > r.snapshotLimit {
		delete(r.snapshots, r.order[0])
		r.order = r.order[1:]
	}
	return snap
}

// forget drops the snapshot of matchID. Callers hold r.mu.
func (r *ResilientStore) forget(matchID string) {
	if _, ok := r.snapshots[matchID]; !ok {
		return
	}
	delete(r.snapshots, matchID)
	for i, id := range r.order {
		if id == matchID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func copyQuestions(in []domain.Question) []domain.Question {
	if in == nil {
		return nil
	}
	out := make([]domain.Question, len(in))
	for i, q := range in {
		q.Options = append([]string(nil), q.Options...)
		if q.AnsweredAt != nil {
			answeredAt := *q.AnsweredAt
			q.AnsweredAt = &answeredAt
		}
		out[i] = q
	}
	return out
}
