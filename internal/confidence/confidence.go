// Package confidence talks to the out-of-process scoring service that
// serves the trained command/response model. The emulator only
// consumes the inference contract: a command and response go in, a
// probability comes out.
package confidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPScorer scores exchanges via a POST to the scoring service.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// NewHTTPScorer builds a scorer for the given endpoint URL.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPScorer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

type scoreResponse struct {
	Confidence float64 `json:"confidence"`
}

// Score returns the service's confidence that the pair is a plausible
// exchange, in [0,1].
func (s *HTTPScorer) Score(ctx context.Context, command, response string) (float64, error) {
	payload, err := json.Marshal(scoreRequest{Command: command, Response: response})
	if err != nil {
		return 0, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scoring service returned %s", resp.Status)
	}

	var body scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	if body.Confidence < 0 || body.Confidence > 1 {
		return 0, fmt.Errorf("confidence %v outside [0,1]", body.Confidence)
	}
	return body.Confidence, nil
}
