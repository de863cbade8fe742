package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"viralscope/internal/calibration"
)

// NewValidateRulesCmd creates the 'validate-rules' command, which runs one
// calibration pass directly against the database.
func NewValidateRulesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate-rules",
		Short: "Recalibrate rule weights from recent outcomes",
		Long: `Compare each rule's predictions with reported outcomes from the last 30 days
and update accuracy, sample count and weight for rules with enough samples.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			v := calibration.NewValidator(store, nil, nil, newLogger(cmd, cfg.LogLevel))
			summary, err := v.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			_, err = fmt.Fprint(out, calibration.FormatSummary(summary))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
