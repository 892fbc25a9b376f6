// Package engine orchestrates APDU handling: classification, response
// construction, history recording and the optional confidence-model
// override.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cardlab/emv-emulator/internal/emv"
	"github.com/cardlab/emv-emulator/internal/logging"
	"github.com/cardlab/emv-emulator/internal/tlv"
)

// HistoryLog receives one entry per handled command. Implementations
// must not block; the engine calls Record on the session's hot path.
type HistoryLog interface {
	Record(deviceID, command, response string, success bool)
}

// Scorer is the confidence-model collaborator: given a command and the
// deterministic response, it returns a probability in [0,1] that the
// pair is a plausible exchange. A nil Scorer is a valid configuration
// and leaves the engine fully deterministic.
type Scorer interface {
	Score(ctx context.Context, command, response string) (float64, error)
}

// DefaultOverrideThreshold is the confidence below which the
// deterministic response is discarded. Carried over from the trained
// model's deployment; override via Options.
const DefaultOverrideThreshold = 0.5

// Options tune the override step. Both values were hardcoded in
// earlier iterations and are deliberately configuration now.
type Options struct {
	// OverrideThreshold replaces DefaultOverrideThreshold when > 0.
	OverrideThreshold float64
	// OverrideStatus is the status word substituted for a low-confidence
	// response. Zero value means file-not-found.
	OverrideStatus emv.StatusWord
	// ScoreTimeout bounds one scoring call. Zero means 2s.
	ScoreTimeout time.Duration
}

// Engine turns inbound APDU commands into responses. Safe for
// concurrent use; all mutable state is the processed counter.
type Engine struct {
	history   HistoryLog
	scorer    Scorer
	threshold float64
	fallback  emv.StatusWord
	timeout   time.Duration
	processed atomic.Uint64
}

// Response is the outcome of one handled command.
type Response struct {
	Command    string          `json:"command"`
	Type       emv.CommandType `json:"-"`
	TypeName   string          `json:"type"`
	Response   string          `json:"response"`
	Success    bool            `json:"success"`
	Overridden bool            `json:"overridden,omitempty"`
}

// New builds an engine. history may be nil (no recording), scorer may
// be nil (no override).
func New(history HistoryLog, scorer Scorer, opts Options) *Engine {
	threshold := opts.OverrideThreshold
	if threshold <= 0 {
		threshold = DefaultOverrideThreshold
	}
	fallback := opts.OverrideStatus
	if fallback == 0 {
		fallback = emv.SWFileNotFound
	}
	timeout := opts.ScoreTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Engine{
		history:   history,
		scorer:    scorer,
		threshold: threshold,
		fallback:  fallback,
		timeout:   timeout,
	}
}

// Handle processes one command: normalize, classify, build the
// response, record history, then apply the optional confidence
// override. A command always yields exactly one response; every
// failure mode surfaces as a status word, never as an error.
func (e *Engine) Handle(ctx context.Context, deviceID, command string, profile *emv.CardProfile) Response {
	normalized := tlv.Normalize(command)
	cmdType := emv.Classify(normalized)
	result := emv.Build(cmdType, normalized, profile)
	response := result.Hex()

	e.processed.Add(1)

	logging.Debug(logging.CatAPDU, "Command handled", map[string]any{
		"device":  deviceID,
		"type":    cmdType.String(),
		"command": normalized,
		"sw":      result.SW.Hex(),
	})

	// History records the deterministic outcome; the override below is
	// post-processing and does not rewrite the entry.
	if e.history != nil {
		e.history.Record(deviceID, normalized, response, result.IsSuccess())
	}

	overridden := false
	if e.scorer != nil {
		if score, ok := e.score(ctx, normalized, response); ok && score < e.threshold {
			logging.Info(logging.CatAPDU, "Low-confidence response overridden", map[string]any{
				"device":    deviceID,
				"type":      cmdType.String(),
				"score":     score,
				"threshold": e.threshold,
			})
			response = e.fallback.Hex()
			overridden = true
		}
	}

	return Response{
		Command:    normalized,
		Type:       cmdType,
		TypeName:   cmdType.String(),
		Response:   response,
		Success:    result.IsSuccess() && !overridden,
		Overridden: overridden,
	}
}

// score asks the collaborator for a confidence value. Scorer faults
// are swallowed; the deterministic response stands.
func (e *Engine) score(ctx context.Context, command, response string) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	score, err := e.scorer.Score(ctx, command, response)
	if err != nil {
		logging.Warn(logging.CatAPDU, "Confidence scoring failed", map[string]any{
			"error": err.Error(),
		})
		return 0, false
	}
	return score, true
}

// Processed returns the total number of commands handled since start.
func (e *Engine) Processed() uint64 {
	return e.processed.Load()
}
