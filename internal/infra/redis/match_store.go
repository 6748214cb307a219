package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MatchStore keeps matches and questions in Redis hashes so several server
// processes can share them.
//
//	match:{id}                  hash   match record
//	match:{id}:questions        list   question ids in presentation order
//	question:{id}               hash   question record
//	matches:status:{status}     zset   match ids scored by creation time
//	matches:player:{playerID}   zset   match ids scored by creation time
//
// Conditional updates run as Lua scripts so each one is atomic on the server.
type MatchStore struct {
	client *redis.Client
}

func NewMatchStore(client *redis.Client) *MatchStore {
	return &MatchStore{client: client}
}

var joinScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'player1_id') == ARGV[2] then return -2 end
if redis.call('HGET', KEYS[1], 'status') ~= 'waiting' then return 0 end
redis.call('HSET', KEYS[1], 'player2_id', ARGV[2], 'player2_name', ARGV[3], 'status', 'active', 'updated_at', ARGV[4])
local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], score or 0, ARGV[1])
redis.call('ZADD', KEYS[4], score or 0, ARGV[1])
return 1
`)

var saveQuestionsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
for i = 1, #ARGV do redis.call('RPUSH', KEYS[1], ARGV[i]) end
return 1
`)

var awardScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then return -2 end
if redis.call('HGET', KEYS[1], 'match_id') ~= ARGV[1] then return -1 end
local by = redis.call('HGET', KEYS[1], 'answered_by')
if by and by ~= '' then return 0 end
redis.call('HSET', KEYS[1], 'answered_by', ARGV[2], 'answered_at', ARGV[3])
redis.call('HINCRBY', KEYS[2], ARGV[4], 1)
redis.call('HSET', KEYS[2], 'updated_at', ARGV[3])
return 1
`)

var advanceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'status') ~= 'active' then return 0 end
local idx = tonumber(redis.call('HGET', KEYS[1], 'current_question_index'))
if idx ~= tonumber(ARGV[2]) then return 0 end
idx = idx + 1
redis.call('HSET', KEYS[1], 'current_question_index', idx, 'updated_at', ARGV[4])
if idx >= tonumber(ARGV[3]) then
  redis.call('HSET', KEYS[1], 'status', 'completed')
  local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
  redis.call('ZREM', KEYS[2], ARGV[1])
  redis.call('ZADD', KEYS[3], score or 0, ARGV[1])
end
return 1
`)

func (s *MatchStore) CreateMatch(ctx context.Context, match domain.Match) (domain.Match, error) {
	score := float64(match.CreatedAt.UnixMilli())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, matchKey(match.ID), encodeMatch(match))
		pipe.ZAdd(ctx, statusKey(match.Status), redis.Z{Score: score, Member: match.ID})
		pipe.ZAdd(ctx, playerKey(match.Player1ID), redis.Z{Score: score, Member: match.ID})
		return nil
	})
	if err != nil {
		return domain.Match{}, unavailable(ctx, "create match", err)
	}
	return match, nil
}

func (s *MatchStore) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	fields, err := s.client.HGetAll(ctx, matchKey(matchID)).Result()
	if err != nil {
		return domain.Match{}, unavailable(ctx, "get match", err)
	}
	if len(fields) == 0 {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return decodeMatch(fields)
}

func (s *MatchStore) JoinMatch(ctx context.Context, matchID string, joiner domain.Player, at time.Time) (domain.Match, error) {
	keys := []string{
		matchKey(matchID),
		statusKey(domain.StatusWaiting),
		statusKey(domain.StatusActive),
		playerKey(joiner.ID),
	}
	res, err := joinScript.Run(ctx, s.client, keys, matchID, joiner.ID, joiner.Name, formatTime(at)).Int()
	if err != nil {
		return domain.Match{}, unavailable(ctx, "join match", err)
	}
	switch res {
	case -1:
		return domain.Match{}, domain.ErrMatchNotFound
	case -2:
		return domain.Match{}, domain.ErrCannotJoinOwnMatch
	case 0:
		return domain.Match{}, domain.ErrMatchNotJoinable
	}
	return s.GetMatch(ctx, matchID)
}

func (s *MatchStore) SaveQuestions(ctx context.Context, matchID string, questions []domain.Question) ([]domain.Question, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}

	ids := make([]interface{}, len(questions))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, q := range questions {
			fields, err := encodeQuestion(q)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, questionKey(q.ID), fields)
			ids[i] = q.ID
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(ctx, "save questions", err)
	}

	stored, err := saveQuestionsScript.Run(ctx, s.client, []string{questionsKey(matchID)}, ids...).Int()
	if err != nil {
		return nil, unavailable(ctx, "save questions", err)
	}
	if stored == 0 {
		// another writer attached a set first; drop ours
		orphans := make([]string, len(questions))
		for i, q := range questions {
			orphans[i] = questionKey(q.ID)
		}
		if len(orphans) > 0 {
			_ = s.client.Del(ctx, orphans...).Err()
		}
	}
	return s.ListQuestions(ctx, matchID)
}

func (s *MatchStore) ListQuestions(ctx context.Context, matchID string) ([]domain.Question, error) {
	ids, err := s.client.LRange(ctx, questionsKey(matchID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(ctx, "list questions", err)
	}
	if len(ids) == 0 {
		if _, err := s.GetMatch(ctx, matchID); err != nil {
			return nil, err
		}
		return []domain.Question{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, questionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(ctx, "list questions", err)
	}

	questions := make([]domain.Question, 0, len(ids))
	for _, cmd := range cmds {
		q, err := decodeQuestion(cmd.Val())
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (s *MatchStore) AwardAnswer(ctx context.Context, matchID, questionID string, seat domain.Seat, playerID string, at time.Time) (bool, error) {
	field := seat.ScoreField()
	if field == "" {
		return false, domain.ErrNotParticipant
	}
	keys := []string{questionKey(questionID), matchKey(matchID)}
	res, err := awardScript.Run(ctx, s.client, keys, matchID, playerID, formatTime(at), field).Int()
	if err != nil {
		return false, unavailable(ctx, "award answer", err)
	}
	switch res {
	case -2:
		return false, domain.ErrMatchNotFound
	case -1:
		return false, domain.ErrQuestionNotFound
	}
	return res == 1, nil
}

func (s *MatchStore) AdvanceQuestion(ctx context.Context, matchID string, from, total int, at time.Time) (domain.Match, error) {
	keys := []string{
		matchKey(matchID),
		statusKey(domain.StatusActive),
		statusKey(domain.StatusCompleted),
	}
	res, err := advanceScript.Run(ctx, s.client, keys, matchID, from, total, formatTime(at)).Int()
	if err != nil {
		return domain.Match{}, unavailable(ctx, "advance question", err)
	}
	if res == -1 {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return s.GetMatch(ctx, matchID)
}

func (s *MatchStore) ListMatchesByStatus(ctx context.Context, status domain.MatchStatus) ([]domain.Match, error) {
	return s.listIndex(ctx, statusKey(status))
}

func (s *MatchStore) ListMatchesForPlayer(ctx context.Context, playerID string) ([]domain.Match, error) {
	return s.listIndex(ctx, playerKey(playerID))
}

func (s *MatchStore) listIndex(ctx context.Context, key string) ([]domain.Match, error) {
	ids, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, unavailable(ctx, "list matches", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if len(ids) > 0 {
		_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, matchKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, unavailable(ctx, "list matches", err)
		}
	}

	matches := make([]domain.Match, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		m, err := decodeMatch(fields)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func encodeMatch(m domain.Match) map[string]interface{} {
	return map[string]interface{}{
		"id":                     m.ID,
		"player1_id":             m.Player1ID,
		"player1_name":           m.Player1Name,
		"player2_id":             m.Player2ID,
		"player2_name":           m.Player2Name,
		"player1_score":          m.Player1Score,
		"player2_score":          m.Player2Score,
		"status":                 string(m.Status),
		"current_question_index": m.CurrentQuestionIndex,
		"created_at":             formatTime(m.CreatedAt),
		"updated_at":             formatTime(m.UpdatedAt),
	}
}

func decodeMatch(fields map[string]string) (domain.Match, error) {
	m := domain.Match{
		ID:          fields["id"],
		Player1ID:   fields["player1_id"],
		Player1Name: fields["player1_name"],
		Player2ID:   fields["player2_id"],
		Player2Name: fields["player2_name"],
		Status:      domain.MatchStatus(fields["status"]),
	}
	var err error
	if m.Player1Score, err = atoi(fields, "player1_score"); err != nil {
		return domain.Match{}, err
	}
	if m.Player2Score, err = atoi(fields, "player2_score"); err != nil {
		return domain.Match{}, err
	}
	if m.CurrentQuestionIndex, err = atoi(fields, "current_question_index"); err != nil {
		return domain.Match{}, err
	}
	if m.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return domain.Match{}, err
	}
	if m.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return domain.Match{}, err
	}
	switch m.Status {
	case domain.StatusWaiting, domain.StatusActive, domain.StatusCompleted:
	default:
		return domain.Match{}, domain.Unavailable("decode match", fmt.Errorf("unknown status %q", m.Status))
	}
	return m, nil
}

func encodeQuestion(q domain.Question) (map[string]interface{}, error) {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	fields := map[string]interface{}{
		"id":             q.ID,
		"match_id":       q.MatchID,
		"position":       q.Position,
		"prompt":         q.Prompt,
		"options":        string(options),
		"correct_answer": q.CorrectAnswer,
		"answered_by":    q.AnsweredBy,
		"answered_at":    "",
	}
	if q.AnsweredAt != nil {
		fields["answered_at"] = formatTime(*q.AnsweredAt)
	}
	return fields, nil
}

func decodeQuestion(fields map[string]string) (domain.Question, error) {
	if len(fields) == 0 {
		return domain.Question{}, domain.Unavailable("decode question", errors.New("question record missing"))
	}
	q := domain.Question{
		ID:            fields["id"],
		MatchID:       fields["match_id"],
		Prompt:        fields["prompt"],
		CorrectAnswer: fields["correct_answer"],
		AnsweredBy:    fields["answered_by"],
	}
	var err error
	if q.Position, err = atoi(fields, "position"); err != nil {
		return domain.Question{}, err
	}
	if err := json.Unmarshal([]byte(fields["options"]), &q.Options); err != nil {
		return domain.Question{}, domain.Unavailable("decode question options", err)
	}
	if raw := fields["answered_at"]; raw != "" {
		at, err := parseTime(raw)
		if err != nil {
			return domain.Question{}, err
		}
		q.AnsweredAt = &at
	}
	return q, nil
}

func atoi(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Unavailable("decode "+name, err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, domain.Unavailable("decode time", err)
	}
	return t, nil
}

func unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return domain.Unavailable(op, err)
}

func matchKey(matchID string) string {
	return "match:" + matchID
}

func questionsKey(matchID string) string {
	return "match:" + matchID + ":questions"
}

func questionKey(questionID string) string {
	return "question:" + questionID
}

func statusKey(status domain.MatchStatus) string {
	return "matches:status:" + string(status)
}

func playerKey(playerID string) string {
	return "matches:player:" + playerID
}
