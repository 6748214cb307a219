package cli

import (
	"fmt"
	"time"

	"duel-trivia-service/internal/config"
	"duel-trivia-service/internal/domain"
	transport "duel-trivia-service/internal/transport/http"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token signed with the configured secret, for local play.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		playerID string
		name     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a player token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth secret not configured")
			}
			if playerID == "" {
				playerID = uuid.NewString()
			}
			if name == "" {
				name = playerID
			}
			token, err := transport.NewAuthenticator([]byte(cfg.Auth.Secret)).
				Issue(domain.Player{ID: playerID, Name: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "id", "", "player id (random if empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
