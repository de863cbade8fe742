package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"viralscope/internal/model"
	"viralscope/internal/rules"
)

type ruleFile struct {
	Rules []ruleSeed `yaml:"rules"`
}

type ruleSeed struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tier        string   `yaml:"tier"`
	MaxScore    float64  `yaml:"max_score"`
	Patterns    []string `yaml:"patterns"`
	Signal      string   `yaml:"signal"`
	Weight      *float64 `yaml:"weight"`
	Active      *bool    `yaml:"active"`
}

// ParseRuleSeeds decodes and validates a YAML rule file. Weight defaults to 1
// and rules are active unless marked otherwise. Duplicate ids are rejected.
func ParseRuleSeeds(r io.Reader) ([]model.Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode rule file: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	out := make([]model.Rule, 0, len(f.Rules))
	for i, s := range f.Rules {
		r := model.Rule{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tier:        model.RuleTier(s.Tier),
			MaxScore:    s.MaxScore,
			Patterns:    s.Patterns,
			Signal:      s.Signal,
			Weight:      1,
			IsActive:    true,
		}
		if s.Weight != nil {
			r.Weight = *s.Weight
		}
		if s.Active != nil {
			r.IsActive = *s.Active
		}
		if err := rules.ValidateRule(r); err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i+1, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule #%d: duplicate id %q", i+1, r.ID)
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

// NewSeedRulesCmd creates the 'seed-rules' command.
func NewSeedRulesCmd() *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed-rules",
		Short: "Create or update rules from a YAML file",
		Long: `Create or update rules from a YAML file. Existing rules keep their
calibrated weight, accuracy and sample count; definitions and active state are replaced.`,
		Example: `  viralctl seed-rules -f rules.yaml
  viralctl seed-rules -f rules.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open rule file: %w", err)
			}
			defer func() { _ = f.Close() }()

			seeds, err := ParseRuleSeeds(f)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d rules valid\n", len(seeds))
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for i := range seeds {
				if err := store.UpsertRule(cmd.Context(), &seeds[i]); err != nil {
					return fmt.Errorf("seed rule %s: %w", seeds[i].ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d rules\n", len(seeds))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML rule file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
