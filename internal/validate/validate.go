// Package validate checks raw submissions before any paid work happens.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"viralscope/internal/model"
)

// Text length bounds, counted in runes after trimming.
const (
	MinTextLength = 10
	MaxTextLength = 10000
)

// A single character may occupy at most spamNumerator/spamDenominator of the text.
const (
	spamNumerator   = 9
	spamDenominator = 10
)

var platformURL = []*regexp.Regexp{
	regexp.MustCompile(`^https://(www\.|vm\.|vt\.)?tiktok\.com/\S+$`),
	regexp.MustCompile(`^https://(www\.)?instagram\.com/(reel|reels|p)/[A-Za-z0-9_-]+/?(\?\S*)?$`),
	regexp.MustCompile(`^https://(www\.)?youtube\.com/shorts/[A-Za-z0-9_-]+/?(\?\S*)?$`),
}

// Submission holds the raw fields a caller submits.
type Submission struct {
	InputMode        string `json:"input_mode"`
	ContentText      string `json:"content_text,omitempty"`
	URL              string `json:"url,omitempty"`
	StorageRef       string `json:"storage_ref,omitempty"`
	ContentType      string `json:"content_type"`
	TargetAudienceID string `json:"target_audience_id,omitempty"`
	Niche            string `json:"niche,omitempty"`
	CreatorHandle    string `json:"creator_handle,omitempty"`
}

// Error describes why a submission was rejected. Rejections are terminal.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate normalizes a submission into an AnalysisInput or returns *Error.
func Validate(sub Submission) (model.AnalysisInput, error) {
	in := model.AnalysisInput{
		Mode:             model.InputMode(strings.ToLower(strings.TrimSpace(sub.InputMode))),
		ContentType:      model.ContentType(strings.ToLower(strings.TrimSpace(sub.ContentType))),
		TargetAudienceID: strings.TrimSpace(sub.TargetAudienceID),
		Niche:            strings.ToLower(strings.TrimSpace(sub.Niche)),
		CreatorHandle:    strings.TrimPrefix(strings.TrimSpace(sub.CreatorHandle), "@"),
	}

	switch in.ContentType {
	case model.ContentVideo, model.ContentImage, model.ContentText, model.ContentCarousel:
	default:
		return model.AnalysisInput{}, invalid("content_type", "unsupported content type %q", sub.ContentType)
	}

	text := strings.TrimSpace(sub.ContentText)
	url := strings.TrimSpace(sub.URL)
	ref := strings.TrimSpace(sub.StorageRef)

	switch in.Mode {
	case model.ModeText:
		if url != "" || ref != "" {
			return model.AnalysisInput{}, invalid("input_mode", "text mode accepts only content_text")
		}
		if err := Text(text); err != nil {
			return model.AnalysisInput{}, err
		}
		in.Text = text
	case model.ModeURL:
		if text != "" || ref != "" {
			return model.AnalysisInput{}, invalid("input_mode", "url mode accepts only url")
		}
		if err := URL(url); err != nil {
			return model.AnalysisInput{}, err
		}
		in.URL = url
	case model.ModeUpload:
		if text != "" || url != "" {
			return model.AnalysisInput{}, invalid("input_mode", "upload mode accepts only storage_ref")
		}
		if ref == "" {
			return model.AnalysisInput{}, invalid("storage_ref", "storage reference is required")
		}
		in.StorageRef = ref
	default:
		return model.AnalysisInput{}, invalid("input_mode", "unsupported input mode %q", sub.InputMode)
	}

	return in, nil
}

// Text checks length bounds and the repeated-character spam heuristic.
// The input is expected to be trimmed already.
func Text(text string) error {
	n := utf8.RuneCountInString(text)
	if n < MinTextLength {
		return invalid("content_text", "must be at least %d characters", MinTextLength)
	}
	if n > MaxTextLength {
		return invalid("content_text", "must be at most %d characters", MaxTextLength)
	}

	counts := make(map[rune]int)
	top := 0
	for _, r := range text {
		counts[r]++
		if counts[r] > top {
			top = counts[r]
		}
	}
	if top*spamDenominator > n*spamNumerator {
		return invalid("content_text", "looks like spam (repeated characters)")
	}
	return nil
}

// URL checks that the link points at a supported short-form platform.
func URL(raw string) error {
	for _, re := range platformURL {
		if re.MatchString(raw) {
			return nil
		}
	}
	return invalid("url", "not a supported platform URL")
}
