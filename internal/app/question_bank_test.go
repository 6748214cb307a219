package app_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"duel-trivia-service/internal/app"
	"duel-trivia-service/internal/domain"
	"duel-trivia-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawQuestionSetUsesWholeCatalog(t *testing.T) {
	catalog := domain.DefaultCatalog()
	bank := app.NewQuestionBankWithRand(memory.NewStaticCatalog(catalog), rand.New(rand.NewSource(7)))

	items, err := bank.DrawQuestionSet(context.Background(), len(catalog))
	require.NoError(t, err)
	require.Len(t, items, len(catalog))

	seen := make(map[string]bool)
	for _, item := range items {
		assert.False(t, seen[item.ID], "duplicate item %s", item.ID)
		seen[item.ID] = true
		assert.NoError(t, item.Validate())
	}
}

func TestDrawQuestionSetSkipsInvalidItems(t *testing.T) {
	catalog := append(domain.DefaultCatalog()[:2],
		domain.CatalogItem{ID: "three-options", Prompt: "?", Options: []string{"a", "b", "c"}, CorrectAnswer: "a"},
		domain.CatalogItem{ID: "answer-missing", Prompt: "?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "e"},
	)
	bank := app.NewQuestionBank(memory.NewStaticCatalog(catalog))

	items, err := bank.DrawQuestionSet(context.Background(), 2)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotContains(t, []string{"three-options", "answer-missing"}, item.ID)
	}

	_, err = bank.DrawQuestionSet(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientQuestions)
}

func TestDrawQuestionSetFallsBackWhenCatalogUnavailable(t *testing.T) {
	bank := app.NewQuestionBank(failingCatalog{err: domain.Unavailable("load catalog", errors.New("connection refused"))})

	items, err := bank.DrawQuestionSet(context.Background(), domain.DefaultQuestionCount)
	require.NoError(t, err)
	require.Len(t, items, domain.DefaultQuestionCount)

	builtin := make(map[string]bool)
	for _, item := range domain.DefaultCatalog() {
		builtin[item.ID] = true
	}
	for _, item := range items {
		assert.True(t, builtin[item.ID], "unexpected item %s", item.ID)
	}
}

func TestDrawQuestionSetPropagatesOtherLoadErrors(t *testing.T) {
	bank := app.NewQuestionBank(failingCatalog{err: errors.New("corrupt options")})
	_, err := bank.DrawQuestionSet(context.Background(), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestNewQuestionSetOrdersPositions(t *testing.T) {
	items := domain.DefaultCatalog()[:4]
	questions := app.NewQuestionSet("m-1", items)

	require.Len(t, questions, 4)
	ids := make(map[string]bool)
	for i, q := range questions {
		assert.Equal(t, i, q.Position)
		assert.Equal(t, "m-1", q.MatchID)
		assert.Equal(t, items[i].Prompt, q.Prompt)
		assert.Equal(t, items[i].CorrectAnswer, q.CorrectAnswer)
		assert.False(t, q.Answered())
		assert.NotEmpty(t, q.ID)
		assert.False(t, ids[q.ID])
		ids[q.ID] = true
	}

	questions[0].Options[0] = "changed"
	assert.NotEqual(t, "changed", items[0].Options[0], "options are copied")
}

type failingCatalog struct {
	err error
}

func (f failingCatalog) LoadCatalog(context.Context) ([]domain.CatalogItem, error) {
	return nil, f.err
}
