package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/uptrace/bun"
)

type matchRow struct {
	bun.BaseModel `bun:"table:matches,alias:m"`

	ID                   string    `bun:"id,pk"`
	Player1ID            string    `bun:"player1_id,notnull"`
	Player1Name          string    `bun:"player1_name,notnull"`
	Player2ID            string    `bun:"player2_id,nullzero"`
	Player2Name          string    `bun:"player2_name,notnull"`
	Player1Score         int       `bun:"player1_score,notnull"`
	Player2Score         int       `bun:"player2_score,notnull"`
	Status               string    `bun:"status,notnull"`
	CurrentQuestionIndex int       `bun:"current_question_index,notnull"`
	CreatedAt            time.Time `bun:"created_at,notnull"`
	UpdatedAt            time.Time `bun:"updated_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:match_questions,alias:q"`

	ID            string     `bun:"id,pk"`
	MatchID       string     `bun:"match_id,notnull"`
	Position      int        `bun:"position,notnull"`
	Prompt        string     `bun:"prompt,notnull"`
	Options       []string   `bun:"options,type:jsonb,notnull"`
	CorrectAnswer string     `bun:"correct_answer,notnull"`
	AnsweredBy    string     `bun:"answered_by,nullzero"`
	AnsweredAt    *time.Time `bun:"answered_at,nullzero"`
}

// MatchStore persists matches and questions in Postgres through bun.
type MatchStore struct {
	db *bun.DB
}

func NewMatchStore(db *bun.DB) *MatchStore {
	return &MatchStore{db: db}
}

func (s *MatchStore) CreateMatch(ctx context.Context, match domain.Match) (domain.Match, error) {
	row := toMatchRow(match)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Match{}, storeErr(ctx, "create match", err)
	}
	return match, nil
}

func (s *MatchStore) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	var row matchRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", matchID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, storeErr(ctx, "get match", err)
	}
	return row.toDomain()
}

func (s *MatchStore) JoinMatch(ctx context.Context, matchID string, joiner domain.Player, at time.Time) (domain.Match, error) {
	var row matchRow
	err := s.db.NewUpdate().Model(&row).
		Set("player2_id = ?", joiner.ID).
		Set("player2_name = ?", joiner.Name).
		Set("status = ?", string(domain.StatusActive)).
		Set("updated_at = ?", at).
		Where("id = ?", matchID).
		Where("status = ?", string(domain.StatusWaiting)).
		Where("player1_id <> ?", joiner.ID).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return row.toDomain()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, storeErr(ctx, "join match", err)
	}

	current, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	if current.Player1ID == joiner.ID {
		return domain.Match{}, domain.ErrCannotJoinOwnMatch
	}
	return domain.Match{}, domain.ErrMatchNotJoinable
}

func (s *MatchStore) SaveQuestions(ctx context.Context, matchID string, questions []domain.Question) ([]domain.Question, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		rows := make([]questionRow, len(questions))
		for i, q := range questions {
			rows[i] = toQuestionRow(q)
		}
		_, err := s.db.NewInsert().Model(&rows).
			On("CONFLICT (match_id, position) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, storeErr(ctx, "save questions", err)
		}
	}
	return s.ListQuestions(ctx, matchID)
}

func (s *MatchStore) ListQuestions(ctx context.Context, matchID string) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("match_id = ?", matchID).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr(ctx, "list questions", err)
	}
	if len(rows) == 0 {
		if _, err := s.GetMatch(ctx, matchID); err != nil {
			return nil, err
		}
	}
	questions := make([]domain.Question, len(rows))
	for i, row := range rows {
		questions[i] = row.toDomain()
	}
	return questions, nil
}

// AwardAnswer claims the question and bumps the scorer's column in one transaction.
// The claim is a conditional UPDATE, so concurrent correct answers produce one winner.
func (s *MatchStore) AwardAnswer(ctx context.Context, matchID, questionID string, seat domain.Seat, playerID string, at time.Time) (bool, error) {
	field := seat.ScoreField()
	if field == "" {
		return false, domain.ErrNotParticipant
	}

	awarded := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*questionRow)(nil)).
			Set("answered_by = ?", playerID).
			Set("answered_at = ?", at).
			Where("id = ?", questionID).
			Where("match_id = ?", matchID).
			Where("answered_by IS NULL").
			Exec(ctx)
		if err != nil {
			return storeErr(ctx, "claim question", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().Model((*questionRow)(nil)).
				Where("id = ?", questionID).
				Where("match_id = ?", matchID).
				Exists(ctx)
			if err != nil {
				return storeErr(ctx, "claim question", err)
			}
			if !exists {
				return domain.ErrQuestionNotFound
			}
			return nil
		}

		_, err = tx.NewUpdate().Model((*matchRow)(nil)).
			Set("? = ? + 1", bun.Ident(field), bun.Ident(field)).
			Set("updated_at = ?", at).
			Where("id = ?", matchID).
			Exec(ctx)
		if err != nil {
			return storeErr(ctx, "increment score", err)
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return awarded, nil
}

func (s *MatchStore) AdvanceQuestion(ctx context.Context, matchID string, from, total int, at time.Time) (domain.Match, error) {
	var row matchRow
	err := s.db.NewUpdate().Model(&row).
		Set("current_question_index = current_question_index + 1").
		Set("status = CASE WHEN current_question_index + 1 >= ? THEN ? ELSE status END", total, string(domain.StatusCompleted)).
		Set("updated_at = ?", at).
		Where("id = ?", matchID).
		Where("status = ?", string(domain.StatusActive)).
		Where("current_question_index = ?", from).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetMatch(ctx, matchID)
	}
	if err != nil {
		return domain.Match{}, storeErr(ctx, "advance question", err)
	}
	return row.toDomain()
}

func (s *MatchStore) ListMatchesByStatus(ctx context.Context, status domain.MatchStatus) ([]domain.Match, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", string(status))
	})
}

func (s *MatchStore) ListMatchesForPlayer(ctx context.Context, playerID string) ([]domain.Match, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("player1_id = ? OR player2_id = ?", playerID, playerID)
	})
}

func (s *MatchStore) list(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.Match, error) {
	var rows []matchRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("created_at DESC")
	if err := filter(q).Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr(ctx, "list matches", err)
	}
	matches := make([]domain.Match, 0, len(rows))
	for _, row := range rows {
		m, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func toMatchRow(m domain.Match) matchRow {
	return matchRow{
		ID:                   m.ID,
		Player1ID:            m.Player1ID,
		Player1Name:          m.Player1Name,
		Player2ID:            m.Player2ID,
		Player2Name:          m.Player2Name,
		Player1Score:         m.Player1Score,
		Player2Score:         m.Player2Score,
		Status:               string(m.Status),
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func (r matchRow) toDomain() (domain.Match, error) {
	status := domain.MatchStatus(r.Status)
	switch status {
	case domain.StatusWaiting, domain.StatusActive, domain.StatusCompleted:
	default:
		return domain.Match{}, domain.Unavailable("decode match", fmt.Errorf("unknown status %q", r.Status))
	}
	return domain.Match{
		ID:                   r.ID,
		Player1ID:            r.Player1ID,
		Player1Name:          r.Player1Name,
		Player2ID:            r.Player2ID,
		Player2Name:          r.Player2Name,
		Player1Score:         r.Player1Score,
		Player2Score:         r.Player2Score,
		Status:               status,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}, nil
}

func toQuestionRow(q domain.Question) questionRow {
	return questionRow{
		ID:            q.ID,
		MatchID:       q.MatchID,
		Position:      q.Position,
		Prompt:        q.Prompt,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		AnsweredBy:    q.AnsweredBy,
		AnsweredAt:    q.AnsweredAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	q := domain.Question{
		ID:            r.ID,
		MatchID:       r.MatchID,
		Position:      r.Position,
		Prompt:        r.Prompt,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		AnsweredBy:    r.AnsweredBy,
	}
	if r.AnsweredAt != nil {
		at := r.AnsweredAt.UTC()
		q.AnsweredAt = &at
	}
	return q
}

// storeErr classifies a driver error. Cancellation passes through; anything else,
// including a missing table, means the store is unavailable.
func storeErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return domain.Unavailable(op, err)
}
