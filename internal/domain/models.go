package domain

import (
	"fmt"
	"time"
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "waiting"
	StatusActive    MatchStatus = "active"
	StatusCompleted MatchStatus = "completed"
)

// DefaultQuestionCount is the number of questions attached to every match.
const DefaultQuestionCount = 10

// OptionCount is the number of options every question offers.
const OptionCount = 4

// Seat identifies which side of a match a player occupies.
type Seat int

const (
	NoSeat Seat = iota
	SeatOne
	SeatTwo
)

// Player is an authenticated caller as supplied by the identity provider.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is the persisted record of one two-player session.
type Match struct {
	ID                   string      `json:"id"`
	Player1ID            string      `json:"player1Id"`
	Player1Name          string      `json:"player1Name"`
	Player2ID            string      `json:"player2Id,omitempty"`
	Player2Name          string      `json:"player2Name,omitempty"`
	Player1Score         int         `json:"player1Score"`
	Player2Score         int         `json:"player2Score"`
	Status               MatchStatus `json:"status"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	Ephemeral            bool        `json:"ephemeral,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// SeatOf reports which seat playerID holds, or NoSeat.
func (m Match) SeatOf(playerID string) Seat {
	switch {
	case playerID == "":
		return NoSeat
	case playerID == m.Player1ID:
		return SeatOne
	case playerID == m.Player2ID:
		return SeatTwo
	}
	return NoSeat
}

// HasPlayer reports whether playerID is one of the two participants.
func (m Match) HasPlayer(playerID string) bool {
	return m.SeatOf(playerID) != NoSeat
}

// SeatOpen reports whether a second player can still take a seat. Besides waiting
// matches, this holds for ephemeral placeholders whose opponent was never seated.
func (m Match) SeatOpen() bool {
	if m.Player2ID != "" {
		return false
	}
	return m.Status == StatusWaiting || (m.Ephemeral && m.Status == StatusActive)
}

// ScoreField returns the persisted score column/field for a seat.
func (s Seat) ScoreField() string {
	switch s {
	case SeatOne:
		return "player1_score"
	case SeatTwo:
		return "player2_score"
	}
	return ""
}

// Question is one item of a match's question set.
type Question struct {
	ID            string     `json:"id"`
	MatchID       string     `json:"matchId"`
	Position      int        `json:"position"`
	Prompt        string     `json:"prompt"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correctAnswer,omitempty"`
	AnsweredBy    string     `json:"answeredBy,omitempty"`
	AnsweredAt    *time.Time `json:"answeredAt,omitempty"`
}

// Answered reports whether the question has been claimed by a correct answer.
func (q Question) Answered() bool {
	return q.AnsweredBy != ""
}

// IsCorrect compares answer against the designated option with exact, case-sensitive equality.
func (q Question) IsCorrect(answer string) bool {
	return answer == q.CorrectAnswer
}

// CatalogItem is an entry of the question bank.
type CatalogItem struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Validate checks the item has exactly four options and that the answer is one of them.
func (c CatalogItem) Validate() error {
	if c.Prompt == "" {
		return fmt.Errorf("%w: %q has empty prompt", ErrInvalidCatalogItem, c.ID)
	}
	if len(c.Options) != OptionCount {
		return fmt.Errorf("%w: %q has %d options", ErrInvalidCatalogItem, c.ID, len(c.Options))
	}
	for _, opt := range c.Options {
		if opt == c.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("%w: %q answer not among options", ErrInvalidCatalogItem, c.ID)
}

// PlayerView is a participant as shown in GameState.
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// GameState is the read model assembled from a match and its questions.
type GameState struct {
	MatchID              string      `json:"matchId"`
	Player1              PlayerView  `json:"player1"`
	Player2              *PlayerView `json:"player2,omitempty"`
	Status               MatchStatus `json:"status"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	CurrentQuestion      *Question   `json:"currentQuestion"`
	Questions            []Question  `json:"questions"`
	QuestionCount        int         `json:"questionCount"`
	TimeLimitSeconds     int         `json:"timeLimitSeconds"`
	Winner               string      `json:"winner,omitempty"`
	Ephemeral            bool        `json:"ephemeral,omitempty"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// AnswerOutcome is the result of SubmitAnswer.
type AnswerOutcome struct {
	Correct bool      `json:"correct"`
	Scored  bool      `json:"scored"`
	State   GameState `json:"state"`
}
