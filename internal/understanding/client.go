// Package understanding calls the external content-understanding model.
package understanding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"viralscope/internal/model"
)

const maxResponseBytes = 4 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the payload sent to the model service.
type Request struct {
	InputMode   model.InputMode   `json:"input_mode"`
	Text        string            `json:"text,omitempty"`
	URL         string            `json:"url,omitempty"`
	StorageRef  string            `json:"storage_ref,omitempty"`
	ContentType model.ContentType `json:"content_type"`
	Niche       string            `json:"niche,omitempty"`
	AudienceID  string            `json:"target_audience_id,omitempty"`
}

// Output is the model's reading of one piece of content.
type Output struct {
	Model                 string             `json:"model"`
	ScorerModel           string             `json:"scorer_model"`
	Score                 float64            `json:"score"`
	Signals               map[string]float64 `json:"signals"`
	Factors               []model.Factor     `json:"factors"`
	Suggestions           []string           `json:"suggestions"`
	BehavioralPredictions map[string]float64 `json:"behavioral_predictions"`
	FeatureVector         []float64          `json:"feature_vector"`
	Reasoning             string             `json:"reasoning"`
	Transcript            string             `json:"transcript"`
	CostCents             float64            `json:"cost_cents"`
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model service returned status %d: %s", e.Code, e.Body)
}

// Client talks to the model service at baseURL.
type Client struct {
	http    HTTPClient
	baseURL string
	apiKey  string
	backoff retry.Backoff
}

// NewClient creates a Client. Server errors and transport failures are
// retried twice with exponential backoff.
func NewClient(httpClient HTTPClient, baseURL, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		backoff: retry.WithMaxRetries(2, retry.NewExponential(250*time.Millisecond)),
	}
}

// FromInput builds a model request from validated input.
func FromInput(in model.AnalysisInput) Request {
	return Request{
		InputMode:   in.Mode,
		Text:        in.Text,
		URL:         in.URL,
		StorageRef:  in.StorageRef,
		ContentType: in.ContentType,
		Niche:       in.Niche,
		AudienceID:  in.TargetAudienceID,
	}
}

// Analyze sends req to the model and decodes its output.
func (c *Client) Analyze(ctx context.Context, req Request) (*Output, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var out *Output
	err = retry.Do(ctx, c.backoff, func(ctx context.Context) error {
		o, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyze content: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("http post: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.RetryableError(serr)
		}
		return nil, serr
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Score < 0 || out.Score > 100 {
		return nil, fmt.Errorf("model score %v out of range", out.Score)
	}
	return &out, nil
}
