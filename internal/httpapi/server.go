package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/state"
)

// StatusServer serves the bot's read-only status API.
type StatusServer struct {
	store     *state.Store
	venue     string
	symbol    string
	startedAt time.Time
	log       *slog.Logger
}

// NewStatusServer creates a status server over the given store. venue names
// the configured execution venue for the health response.
func NewStatusServer(store *state.Store, venue, symbol string, log *slog.Logger) *StatusServer {
	if log == nil {
		log = slog.Default()
	}
	return &StatusServer{
		store:     store,
		venue:     venue,
		symbol:    symbol,
		startedAt: time.Now().UTC(),
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *StatusServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/signals/{id}", s.handleSignal)
}

// Handler returns an http.Handler with all routes registered.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthJSON{
		Status:    "ok",
		Venue:     s.venue,
		Symbol:    s.symbol,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *StatusServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	if q := r.URL.Query().Get("status"); q != "" {
		status := domain.Status(q)
		switch status {
		case domain.StatusNew, domain.StatusPending, domain.StatusOpen,
			domain.StatusClosed, domain.StatusCanceled, domain.StatusSkipped,
			domain.StatusError:
		default:
			writeError(w, http.StatusBadRequest, "unknown status "+q)
			return
		}
		positions = s.store.ByStatus(status)
	} else {
		positions = s.store.Positions()
	}

	out := make([]PositionJSON, 0, len(positions))
	for i := range positions {
		out = append(out, positionJSON(positions[i]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SignalID != out[j].SignalID {
			return out[i].SignalID < out[j].SignalID
		}
		return out[i].SplitIndex < out[j].SplitIndex
	})
	writeJSON(w, out)
}

func (s *StatusServer) handleSignal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "signal id must be an integer")
		return
	}

	sig, ok := s.store.Signal(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown signal")
		return
	}

	splits := s.store.SplitsFor(id)
	resp := SignalJSON{
		MessageID: sig.MessageID,
		Symbol:    sig.Symbol,
		Side:      string(sig.Side),
		Entry:     sig.Entry,
		TPs:       sig.TPs,
		SL:        sig.SL,
		Splits:    make([]PositionJSON, 0, len(splits)),
	}
	for i := range splits {
		resp.Splits = append(resp.Splits, positionJSON(splits[i]))
	}
	writeJSON(w, resp)
}
