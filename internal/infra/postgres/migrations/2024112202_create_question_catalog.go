package migrations

import (
	"context"
	_ "embed"

	"duel-trivia-service/internal/domain"
	"github.com/uptrace/bun"
)

//go:embed 0002_create_question_catalog.sql
var createQuestionCatalogSQL string

type builtinCatalogRow struct {
	bun.BaseModel `bun:"table:question_catalog"`

	ID            string   `bun:"id,pk"`
	Prompt        string   `bun:"prompt,notnull"`
	Options       []string `bun:"options,type:jsonb,notnull"`
	CorrectAnswer string   `bun:"correct_answer,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, createQuestionCatalogSQL); err != nil {
				return err
			}
			// Fresh schemas start with the built-in catalog.
			var rows []builtinCatalogRow
			for _, item := range domain.DefaultCatalog() {
				rows = append(rows, builtinCatalogRow{
					ID:            item.ID,
					Prompt:        item.Prompt,
					Options:       item.Options,
					CorrectAnswer: item.CorrectAnswer,
				})
			}
			_, err := db.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS question_catalog`)
			return err
		},
	)
}
