package cli

import (
	"errors"
	"strings"
	"time"

	"planner/api/internal/auth"
	"planner/api/internal/config"
	"planner/api/internal/rbac"

	"github.com/spf13/cobra"
)

func newTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development helpers for planner API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(app))
	return cmd
}

func newTokenIssueCmd(app *App) *cobra.Command {
	cfg := config.Load()
	var (
		secret string
		sub    string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with the server secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				sub = app.IdentityID
			}
			if strings.TrimSpace(sub) == "" {
				return writeErr(cmd, errors.New("missing --sub (or --id)"))
			}
			if secret == "" {
				return writeErr(cmd, errors.New("missing --secret"))
			}
			token, claims, err := auth.IssueSession([]byte(secret), sub, app.Email, role, ttl)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"token":     token,
				"sub":       claims.Sub,
				"role":      claims.Role,
				"expiresAt": time.Unix(claims.Exp, 0).UTC(),
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", cfg.TokenSecret, "HMAC secret (PLANNER_TOKEN_SECRET)")
	cmd.Flags().StringVar(&sub, "sub", "", "Token subject; defaults to --id")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleStudent), "Role (viewer|student|admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.TokenTTL, "Token lifetime")
	return cmd
}
