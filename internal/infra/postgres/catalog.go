package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"duel-trivia-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
)

// CatalogLoader loads the question catalog from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, prompt, options, correct_answer FROM question_catalog ORDER BY id`)
	if err != nil {
		return nil, domain.Unavailable("load catalog", err)
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		var (
			item domain.CatalogItem
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &item.Prompt, &raw, &item.CorrectAnswer); err != nil {
			return nil, domain.Unavailable("scan catalog", err)
		}
		if err := json.Unmarshal(raw, &item.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("load catalog", err)
	}
	return items, nil
}

type catalogRow struct {
	bun.BaseModel `bun:"table:question_catalog"`

	ID            string   `bun:"id,pk"`
	Prompt        string   `bun:"prompt,notnull"`
	Options       []string `bun:"options,type:jsonb,notnull"`
	CorrectAnswer string   `bun:"correct_answer,notnull"`
}

// SeedCatalog upserts items into question_catalog. Invalid items are rejected
// before anything is written.
func SeedCatalog(ctx context.Context, db *bun.DB, items []domain.CatalogItem) (int, error) {
	rows := make([]catalogRow, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, err
		}
		rows = append(rows, catalogRow{
			ID:            item.ID,
			Prompt:        item.Prompt,
			Options:       item.Options,
			CorrectAnswer: item.CorrectAnswer,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res, err := db.NewInsert().Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("prompt = EXCLUDED.prompt").
		Set("options = EXCLUDED.options").
		Set("correct_answer = EXCLUDED.correct_answer").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
