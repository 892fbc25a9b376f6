package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cardlab/emv-emulator/internal/cards"
	"github.com/cardlab/emv-emulator/internal/emv"
	"github.com/cardlab/emv-emulator/internal/engine"
	"github.com/cardlab/emv-emulator/internal/history"
	"github.com/cardlab/emv-emulator/internal/logging"
	"github.com/cardlab/emv-emulator/internal/settings"
)

// Version information (set via ldflags in production builds)
var (
	Version   = ""
	BuildTime = ""
	GitCommit = ""
)

func init() {
	// If version wasn't set via ldflags, this is a dev build
	// Try to get VCS info from Go's build info
	if Version == "" {
		Version = "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			var vcsRevision, vcsTime string
			var vcsModified bool
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					vcsRevision = setting.Value
				case "vcs.time":
					vcsTime = setting.Value
				case "vcs.modified":
					vcsModified = setting.Value == "true"
				}
			}
			if vcsRevision != "" {
				shortCommit := vcsRevision
				if len(shortCommit) > 7 {
					shortCommit = shortCommit[:7]
				}
				GitCommit = vcsRevision
				Version = "dev-" + shortCommit
				if vcsModified {
					Version += "-dirty"
				}
			}
			if vcsTime != "" {
				BuildTime = vcsTime
			}
		}
	}
}

// Server bundles the collaborators the HTTP surface exposes.
type Server struct {
	hub     *Hub
	engine  *engine.Engine
	history *history.Store
	cards   *cards.Store
}

// NewServer wires the operator API. history and cards may be nil;
// their endpoints then report service unavailable.
func NewServer(hub *Hub, eng *engine.Engine, historyStore *history.Store, cardStore *cards.Store) *Server {
	return &Server{hub: hub, engine: eng, history: historyStore, cards: cardStore}
}

// Router builds the full route table, including the device WebSocket
// endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/ws", s.hub.Handler())

	r.HandleFunc("/v1/status", corsMiddleware(s.handleStatus)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/health", corsMiddleware(s.handleHealth)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/version", corsMiddleware(handleVersion)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/aids", corsMiddleware(handleAIDs)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/history", corsMiddleware(s.handleHistory)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/logs", corsMiddleware(handleLogs)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/settings", corsMiddleware(handleSettings)).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)

	r.HandleFunc("/cards", corsMiddleware(s.handleListCards)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/cards", corsMiddleware(s.handleCreateCard)).Methods(http.MethodPost)
	r.HandleFunc("/cards/{id:[0-9]+}", corsMiddleware(s.handleGetCard)).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// recoveryMiddleware catches panics and logs them to crash files.
func recoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				context := fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)

				logging.CapturePanic(rec, stack, context)
				logging.Error(logging.CatHTTP, fmt.Sprintf("PANIC in %s: %v", context, rec), map[string]any{
					"panic":  fmt.Sprintf("%v", rec),
					"method": r.Method,
					"path":   r.URL.Path,
				})

				crashFile, err := logging.WriteCrashLog(rec, stack)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to write crash log: %v\n", err)
					crashFile = ""
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":     "internal server error",
					"crashFile": crashFile,
				})
			}
		}()
		next(w, r)
	}
}

// corsMiddleware adds CORS headers to allow browser access from any origin.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		recoveryMiddleware(next)(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":            s.hub.Sessions(),
		"device_count":       len(s.hub.ListActive()),
		"commands_processed": s.engine.Processed(),
		"registered_aids":    emv.RegisteredAIDs(),
		"default_scheme":     settings.GetDefaultScheme(),
		"timestamp":          time.Now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"device_count": len(s.hub.ListActive()),
	})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
	})
}

func handleAIDs(w http.ResponseWriter, r *http.Request) {
	entries := make([]emv.AIDEntry, 0)
	for _, aid := range emv.RegisteredAIDs() {
		if entry, ok := emv.LookupAID(aid); ok {
			entries = append(entries, entry)
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.Recent(limit)
	if err != nil {
		logging.Error(logging.CatHTTP, "History query failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, logging.Recent(limit))
}

func handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settings.Get())
	case http.MethodPost:
		var req struct {
			CrashReporting *bool   `json:"crashReporting"`
			DefaultScheme  *string `json:"defaultScheme"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CrashReporting != nil {
			if err := settings.SetCrashReporting(*req.CrashReporting); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
		}
		if req.DefaultScheme != nil {
			if err := settings.SetDefaultScheme(*req.DefaultScheme); err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
		}
		writeJSON(w, http.StatusOK, settings.Get())
	}
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	if s.cards == nil {
		writeError(w, http.StatusServiceUnavailable, "card store not configured")
		return
	}
	list, err := s.cards.List()
	if err != nil {
		logging.Error(logging.CatHTTP, "Card list failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "card query failed")
		return
	}
	if list == nil {
		list = []cards.Card{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	if s.cards == nil {
		writeError(w, http.StatusServiceUnavailable, "card store not configured")
		return
	}

	var req struct {
		HolderName string  `json:"holder_name"`
		PAN        string  `json:"pan"`
		Expiry     string  `json:"expiry"` // YYYY-MM-DD
		CVV        int     `json:"cvv"`
		IssuerID   string  `json:"issuer_id"`
		Track      string  `json:"track"`
		Amount     float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HolderName == "" || req.PAN == "" {
		writeError(w, http.StatusBadRequest, "holder_name and pan are required")
		return
	}

	expiry, err := time.Parse("2006-01-02", req.Expiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
		return
	}

	card, err := s.cards.Create(cards.Card{
		HolderName: req.HolderName,
		PAN:        req.PAN,
		Expiry:     expiry,
		CVV:        req.CVV,
		IssuerID:   req.IssuerID,
		Track:      req.Track,
		Amount:     req.Amount,
	})
	if err != nil {
		logging.Error(logging.CatHTTP, "Card create failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "card create failed")
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	if s.cards == nil {
		writeError(w, http.StatusServiceUnavailable, "card store not configured")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	card, err := s.cards.Get(id)
	if errors.Is(err, cards.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	if err != nil {
		logging.Error(logging.CatHTTP, "Card get failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "card query failed")
		return
	}
	writeJSON(w, http.StatusOK, card)
}
