package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"viralscope/internal/auth"
	"viralscope/internal/calibration"
	"viralscope/internal/storage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_PATH", "LOG_LEVEL", "JOB_SIGNING_KEY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_OPERATOR_CHAT"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseRuleSeeds(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantIDs []string
		wantErr string
	}{
		{
			name: "defaults applied",
			yaml: `
rules:
  - id: hook
    tier: semantic
    max_score: 20
    signal: hook_strength
`,
			wantIDs: []string{"hook"},
		},
		{
			name:    "invalid regex",
			yaml:    "rules:\n  - id: q\n    tier: pattern\n    max_score: 5\n    patterns: [\"re:[\"]\n",
			wantErr: "invalid regex",
		},
		{
			name:    "duplicate id",
			yaml:    "rules:\n  - {id: a, tier: semantic, max_score: 1, signal: s}\n  - {id: a, tier: semantic, max_score: 1, signal: s}\n",
			wantErr: "duplicate id",
		},
		{
			name:    "unknown field",
			yaml:    "rules:\n  - {id: a, tier: semantic, max_score: 1, signal: s, score: 3}\n",
			wantErr: "field score not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRuleSeeds(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseRuleSeeds() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
				if r.Weight != 1 || !r.IsActive {
					t.Errorf("rule %s: weight=%v active=%v, want defaults 1/true", r.ID, r.Weight, r.IsActive)
				}
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSeedRulesCommand(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "vs.db")
	seedFile := filepath.Join("..", "..", "testdata", "rules.yaml")

	out, err := execute(t, "seed-rules", "-f", seedFile, "--dry-run", "--db", db)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if out != "6 rules valid\n" {
		t.Errorf("dry run output = %q", out)
	}

	out, err = execute(t, "seed-rules", "-f", seedFile, "--db", db)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if out != "Seeded 6 rules\n" {
		t.Errorf("seed output = %q", out)
	}

	store, err := storage.NewSQLite(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	active, err := store.ListActiveRules(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 5 {
		t.Errorf("got %d active rules, want 5", len(active))
	}
	hook, err := store.GetRule(context.Background(), "hook-strength")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if hook.Weight != 1.5 {
		t.Errorf("hook-strength weight = %v, want 1.5", hook.Weight)
	}
}

func TestValidateRulesCommand(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "vs.db")
	if _, err := execute(t, "seed-rules", "-f", filepath.Join("..", "..", "testdata", "rules.yaml"), "--db", db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := execute(t, "validate-rules", "--json", "--db", db)
	if err != nil {
		t.Fatalf("validate-rules: %v", err)
	}
	var got calibration.Summary
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if got.Processed != 0 || got.RulesUpdated != 0 {
		t.Errorf("summary = %+v, want nothing processed", got)
	}

	out, err = execute(t, "validate-rules", "--db", db)
	if err != nil {
		t.Fatalf("validate-rules text: %v", err)
	}
	if !strings.HasPrefix(out, "Rule calibration finished") {
		t.Errorf("text output = %q", out)
	}
}

func TestJobTokenCommand(t *testing.T) {
	clearEnv(t)
	if _, err := execute(t, "job-token"); err == nil {
		t.Fatal("expected error without JOB_SIGNING_KEY")
	}

	t.Setenv("JOB_SIGNING_KEY", "ops-key")
	out, err := execute(t, "job-token", "--ttl", "1m")
	if err != nil {
		t.Fatalf("job-token: %v", err)
	}
	if err := auth.NewJobVerifier([]byte("ops-key")).Verify(strings.TrimSpace(out)); err != nil {
		t.Errorf("issued token rejected: %v", err)
	}
}

func TestMigrateCommand(t *testing.T) {
	clearEnv(t)
	db := filepath.Join(t.TempDir(), "vs.db")

	if _, err := execute(t, "migrate", "up", "--db", db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	out, err := execute(t, "migrate", "version", "--db", db)
	if err != nil {
		t.Fatalf("migrate version: %v", err)
	}
	if out != "version 1\n" {
		t.Errorf("version output = %q", out)
	}
	if _, err := execute(t, "migrate", "sideways", "--db", db); err == nil {
		t.Error("expected error for unknown migrate command")
	}
}
