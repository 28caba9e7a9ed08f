// Package gateway exposes the HTTP and WebSocket surface of the crash
// game: joining the current round, reading its snapshot, verifying a
// finished round's fairness proof, and streaming round events.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/playward/crashpoint/internal/fairness"
	"github.com/playward/crashpoint/internal/lobby"
	"github.com/playward/crashpoint/internal/round"
)

// Handlers serves the game's HTTP endpoints.
type Handlers struct {
	coordinator   *lobby.Coordinator
	hub           *Hub
	clientSeed    string
	maxMultiplier float64
}

// NewHandlers creates the HTTP handler set. The client seed and max
// multiplier must match the fairness source so /verify recomputes the
// same crash points.
func NewHandlers(coordinator *lobby.Coordinator, hub *Hub, clientSeed string, maxMultiplier float64) *Handlers {
	return &Handlers{
		coordinator:   coordinator,
		hub:           hub,
		clientSeed:    clientSeed,
		maxMultiplier: maxMultiplier,
	}
}

// RegisterRoutes registers all game routes on the mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /join", h.HandleJoin)
	mux.HandleFunc("GET /round", h.HandleRound)
	mux.HandleFunc("POST /verify", h.HandleVerify)
	mux.HandleFunc("GET /ws", h.hub.HandleFeed)
}

type joinRequest struct {
	Address             string  `json:"address"`
	BetAmount           float64 `json:"bet_amount"`
	PredictedMultiplier float64 `json:"predicted_multiplier"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleJoin places or updates a bet on the current round.
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.coordinator.Join(r.Context(), req.Address, req.BetAmount, req.PredictedMultiplier)
	if err != nil {
		switch {
		case errors.Is(err, round.ErrValidation):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		case errors.Is(err, round.ErrInvalidState):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		default:
			log.Error().Err(err).Str("address", req.Address).Msg("join failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleRound returns the current round snapshot, redacted for the
// requesting address.
func (h *Handlers) HandleRound(w http.ResponseWriter, r *http.Request) {
	viewer := r.URL.Query().Get("address")
	writeJSON(w, http.StatusOK, h.coordinator.Snapshot(viewer))
}

type verifyRequest struct {
	RoundID    string  `json:"round_id"`
	SeedHash   string  `json:"seed_hash"`
	ServerSeed string  `json:"server_seed"`
	CrashPoint float64 `json:"crash_point"`
}

type verifyResponse struct {
	Valid      bool    `json:"valid"`
	RoundID    string  `json:"round_id"`
	CrashPoint float64 `json:"crash_point"`
}

// HandleVerify recomputes a finished round's crash point from its
// revealed seed so players can check the fairness proof themselves.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if !fairness.VerifySeed(req.ServerSeed, req.SeedHash) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "seed does not match commitment hash"})
		return
	}

	expected := fairness.CrashPoint(req.ServerSeed, h.clientSeed, req.RoundID, h.maxMultiplier)
	if req.CrashPoint != expected {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "crash point does not match seed"})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:      true,
		RoundID:    req.RoundID,
		CrashPoint: req.CrashPoint,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
