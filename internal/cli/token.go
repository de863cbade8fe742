package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"viralscope/internal/auth"
)

// NewJobTokenCmd creates the 'job-token' command.
func NewJobTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "job-token",
		Short: "Print a signed token for the validate-rules job endpoint",
		Example: `  curl -X POST -H "Authorization: Bearer $(viralctl job-token)" \
    http://localhost:8080/internal/jobs/validate-rules`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireJobKey(); err != nil {
				return err
			}
			token, err := auth.IssueJobToken([]byte(cfg.JobSigningKey), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 10*time.Minute, "token lifetime")
	return cmd
}
