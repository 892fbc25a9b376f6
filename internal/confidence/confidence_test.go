package confidence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPScorerScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		var req struct {
			Command  string `json:"command"`
			Response string `json:"response"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Command != "80CA9F3600" {
			t.Errorf("command = %q", req.Command)
		}

		json.NewEncoder(w).Encode(map[string]float64{"confidence": 0.83})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	score, err := scorer.Score(context.Background(), "80CA9F3600", "9F360200019000")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0.83 {
		t.Errorf("score = %v, want 0.83", score)
	}
}

func TestHTTPScorerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	if _, err := scorer.Score(context.Background(), "80CA9F3600", "9000"); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestHTTPScorerOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"confidence": 1.7})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	if _, err := scorer.Score(context.Background(), "80CA9F3600", "9000"); err == nil {
		t.Error("expected an error for a confidence outside [0,1]")
	}
}

func TestHTTPScorerContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]float64{"confidence": 0.9})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	if _, err := scorer.Score(ctx, "80CA9F3600", "9000"); err == nil {
		t.Error("expected an error when the context deadline passes")
	}
}
