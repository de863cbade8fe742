package creator

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"viralscope/internal/model"
	"viralscope/internal/storage"
)

func newStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetFallsBackToDefaults(t *testing.T) {
	l := NewLookup(newStore(t), nil, slog.New(slog.DiscardHandler))

	got, err := l.Get(context.Background(), "@nobody", "fitness")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.CreatorContext{Handle: "@nobody", Niche: "fitness", FollowerCount: DefaultFollowers, AvgEngagement: DefaultEngagement}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetKnownAndAverages(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	updated := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range []model.CreatorContext{
		{Handle: "FitAnna", Niche: "fitness", FollowerCount: 30000, AvgEngagement: 0.5, UpdatedAt: updated},
		{Handle: "chef_li", Niche: "food", FollowerCount: 10000, AvgEngagement: 0.25, UpdatedAt: updated},
	} {
		if err := store.UpsertCreator(ctx, &c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	l := NewLookup(store, nil, slog.New(slog.DiscardHandler))

	got, err := l.Get(ctx, " fitanna ", "")
	if err != nil {
		t.Fatalf("get known: %v", err)
	}
	want := model.CreatorContext{Handle: "fitanna", Niche: "fitness", FollowerCount: 30000, AvgEngagement: 0.5, Known: true, UpdatedAt: updated}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("known creator mismatch (-want +got):\n%s", diff)
	}

	got, err = l.Get(ctx, "stranger", "travel")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if got.Known || got.FollowerCount != 20000 || got.AvgEngagement != 0.375 {
		t.Errorf("unknown creator = %+v, want platform averages", got)
	}
}

func TestGetUsesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStore(t)
	c := model.CreatorContext{Handle: "fitanna", Niche: "fitness", FollowerCount: 30000, AvgEngagement: 0.06}
	if err := store.UpsertCreator(ctx, &c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	l := NewLookup(store, client, slog.New(slog.DiscardHandler))

	if _, err := l.Get(ctx, "fitanna", ""); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !mr.Exists("creator:fitanna") {
		t.Fatal("expected creator to be cached")
	}
	if ttl := mr.TTL("creator:fitanna"); ttl != cacheTTL {
		t.Errorf("TTL = %v, want %v", ttl, cacheTTL)
	}

	c.FollowerCount = 99
	if err := store.UpsertCreator(ctx, &c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := l.Get(ctx, "fitanna", "")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got.FollowerCount != 30000 {
		t.Errorf("FollowerCount = %d, want cached 30000", got.FollowerCount)
	}
}

func TestGetDoesNotCacheRequestNiche(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStore(t)
	c := model.CreatorContext{Handle: "noniche", FollowerCount: 5000, AvgEngagement: 0.25}
	if err := store.UpsertCreator(ctx, &c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	l := NewLookup(store, client, slog.New(slog.DiscardHandler))

	tests := []struct {
		niche string
		want  string
	}{
		{niche: "fitness", want: "fitness"},
		{niche: "food", want: "food"},
		{niche: "", want: ""},
	}
	for _, tt := range tests {
		got, err := l.Get(ctx, "noniche", tt.niche)
		if err != nil {
			t.Fatalf("get(%q): %v", tt.niche, err)
		}
		if diff := cmp.Diff(tt.want, got.Niche); diff != "" {
			t.Errorf("Get(niche=%q).Niche mismatch (-want +got):\n%s", tt.niche, diff)
		}
	}

	raw, err := mr.Get("creator:noniche")
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if strings.Contains(raw, "fitness") {
		t.Errorf("cached record carries a request niche: %s", raw)
	}
}
