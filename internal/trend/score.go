package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoFeeds is returned when no trending feeds are configured.
var ErrNoFeeds = errors.New("no trend feeds configured")

const (
	baseScore    = 20.0
	termBonus    = 25.0
	nicheBonus   = 10.0
	neutralScore = 50.0
)

var termPattern = regexp.MustCompile(`#?[\p{L}\p{N}]{4,}`)

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "your": true, "from": true,
	"have": true, "what": true, "about": true, "check": true, "just": true,
	"they": true, "will": true, "when": true, "into": true, "been": true,
}

// Source serves trending items from a set of feeds, cached for a TTL.
type Source struct {
	fetcher *Fetcher
	feeds   []string
	ttl     time.Duration
	log     *slog.Logger
	now     func() time.Time
	group   singleflight.Group

	mu        sync.Mutex
	items     []Item
	fetchedAt time.Time
}

// NewSource creates a Source reading the given feed URLs.
func NewSource(fetcher *Fetcher, feeds []string, ttl time.Duration, log *slog.Logger) *Source {
	return &Source{
		fetcher: fetcher,
		feeds:   feeds,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// Items returns the current trending items, refetching when the cache is stale.
// Concurrent callers share one refresh; each stops waiting when its own ctx is
// done, while the refresh runs on for the others.
func (s *Source) Items(ctx context.Context) ([]Item, error) {
	if len(s.feeds) == 0 {
		return nil, ErrNoFeeds
	}
	if items, ok := s.cached(); ok {
		return items, nil
	}

	ch := s.group.DoChan("feeds", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Item), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) cached() ([]Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchedAt.IsZero() || s.now().Sub(s.fetchedAt) >= s.ttl {
		return nil, false
	}
	return s.items, true
}

// refresh fetches every feed. A feed that fails is logged and skipped; only a
// total failure is an error.
func (s *Source) refresh(ctx context.Context) ([]Item, error) {
	var items []Item
	var lastErr error
	ok := 0
	for _, url := range s.feeds {
		got, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			s.log.Warn("fetch trend feed", "url", url, "error", err)
			lastErr = err
			continue
		}
		ok++
		items = append(items, got...)
	}
	if ok == 0 {
		return nil, fmt.Errorf("fetch trend feeds: %w", lastErr)
	}

	s.mu.Lock()
	s.items = items
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return items, nil
}

// Scorer rates how well content aligns with what is trending.
type Scorer struct {
	source *Source
}

// NewScorer creates a Scorer over source.
func NewScorer(source *Source) *Scorer {
	return &Scorer{source: source}
}

// Score returns a 0-100 alignment score for text within niche.
func (s *Scorer) Score(ctx context.Context, text, niche string) (float64, error) {
	items, err := s.source.Items(ctx)
	if err != nil {
		return 0, err
	}
	return Alignment(items, text, niche), nil
}

// Alignment scores text against items: each shared term adds termBonus to a
// base, and a niche matching an item category adds nicheBonus.
func Alignment(items []Item, text, niche string) float64 {
	trending := make(map[string]bool)
	categories := make(map[string]bool)
	for _, it := range items {
		for _, t := range Terms(it.Title) {
			trending[t] = true
		}
		for _, c := range it.Categories {
			c = strings.ToLower(strings.TrimSpace(c))
			categories[c] = true
			trending[c] = true
		}
	}

	terms := Terms(text)
	score := baseScore
	if len(terms) == 0 {
		score = neutralScore
	}
	for _, t := range terms {
		if trending[t] {
			score += termBonus
		}
	}
	if niche != "" && categories[strings.ToLower(niche)] {
		score += nicheBonus
	}
	return math.Min(100, score)
}

// Terms extracts distinct lower-cased hashtags and words of four or more
// letters, dropping common filler words.
func Terms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range termPattern.FindAllString(strings.ToLower(text), -1) {
		m = strings.TrimPrefix(m, "#")
		if stopwords[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
