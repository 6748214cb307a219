package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/google/uuid"
)

// CatalogSource supplies the full question catalog (static list, database, cache).
type CatalogSource interface {
	LoadCatalog(ctx context.Context) ([]domain.CatalogItem, error)
}

// QuestionBank draws randomized question sets from a catalog. When the catalog
// source is unavailable it draws from the built-in catalog instead.
type QuestionBank struct {
	source   CatalogSource
	fallback []domain.CatalogItem

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionBank(source CatalogSource) *QuestionBank {
	return NewQuestionBankWithRand(source, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewQuestionBankWithRand is used by tests that need a reproducible draw.
func NewQuestionBankWithRand(source CatalogSource, rnd *rand.Rand) *QuestionBank {
	return &QuestionBank{source: source, fallback: domain.DefaultCatalog(), rnd: rnd}
}

// DrawQuestionSet returns n distinct catalog items in random presentation order.
// Invalid catalog entries are never drawn.
func (b *QuestionBank) DrawQuestionSet(ctx context.Context, n int) ([]domain.CatalogItem, error) {
	catalog, err := b.source.LoadCatalog(ctx)
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable) && len(b.fallback) > 0:
		catalog = b.fallback
	case err != nil:
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	pool := make([]domain.CatalogItem, 0, len(catalog))
	for _, item := range catalog {
		if item.Validate() == nil {
			pool = append(pool, item)
		}
	}
	if n <= 0 || len(pool) < n {
		return nil, fmt.Errorf("%w: want %d, have %d", domain.ErrInsufficientQuestions, n, len(pool))
	}

	b.mu.Lock()
	b.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	b.mu.Unlock()

	return pool[:n], nil
}

// NewQuestionSet turns drawn catalog items into the ordered question records of a match.
func NewQuestionSet(matchID string, items []domain.CatalogItem) []domain.Question {
	questions := make([]domain.Question, len(items))
	for i, item := range items {
		options := make([]string, len(item.Options))
		copy(options, item.Options)
		questions[i] = domain.Question{
			ID:            uuid.NewString(),
			MatchID:       matchID,
			Position:      i,
			Prompt:        item.Prompt,
			Options:       options,
			CorrectAnswer: item.CorrectAnswer,
		}
	}
	return questions
}
