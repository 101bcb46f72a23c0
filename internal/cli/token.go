package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iliyamo/flight-seating/internal/config"
	"github.com/iliyamo/flight-seating/internal/utils"
)

// TokenCmd returns the token command.
func TokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttlMin  int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token",
		Long: `Sign a JWT with JWT_SECRET. Initializing seats requires a token
with role OPERATOR.

Examples:
  flight-seating token
  flight-seating token --subject ops-team --ttl 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv()
			cfg := config.Load()
			if ttlMin <= 0 {
				ttlMin = cfg.AccessTTLMin
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, subject, role, ttlMin)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s expires %s\n",
				color.New(color.FgGreen).Sprint("✓"), tok.Exp.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().StringVar(&role, "role", utils.RoleOperator, "Role claim")
	cmd.Flags().IntVar(&ttlMin, "ttl", 0, "Lifetime in minutes (default ACCESS_TOKEN_TTL_MIN)")
	return cmd
}
