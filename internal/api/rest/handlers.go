package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/fortuna/metapitch/internal/cache"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/service"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	db            *store.Database
	cache         cache.PlayCache
	gameService   *service.GameService
	playService   *service.PlayService
	playerService *service.PlayerService
}

// NewHandler creates a new handler
func NewHandler(db *store.Database, c cache.PlayCache) *Handler {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Handler{
		db:            db,
		cache:         c,
		gameService:   service.NewGameService(db),
		playService:   service.NewPlayService(db, c),
		playerService: service.NewPlayerService(db),
	}
}

// HealthCheck reports store and cache reachability.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status":   "healthy",
		"service":  "metapitch",
		"database": "ok",
		"cache":    "ok",
	}
	if err := h.db.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = err.Error()
	}
	if err := h.cache.HealthCheck(ctx); err != nil {
		body["cache"] = err.Error()
	}
	respondJSON(w, status, body)
}

// ListGames returns games, optionally filtered by season and week.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	season, err := optionalInt(r, "season")
	if err != nil {
		respondError(w, http.StatusBadRequest, "season and week must be numeric", nil)
		return
	}
	week, err := optionalInt(r, "week")
	if err != nil {
		respondError(w, http.StatusBadRequest, "season and week must be numeric", nil)
		return
	}

	games, err := h.gameService.ListGames(r.Context(), season, week)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch games", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetGame returns a single game.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameID")
	if !ok {
		return
	}

	game, err := h.gameService.GetGame(r.Context(), gameID)
	if err != nil {
		respondLookupError(w, "Game not found", "Failed to fetch game", err)
		return
	}
	respondJSON(w, http.StatusOK, game)
}

// ListPlays returns the plays of a game.
func (h *Handler) ListPlays(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameID")
	if !ok {
		return
	}

	plays, err := h.playService.ListByGame(r.Context(), gameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch plays", err)
		return
	}
	respondJSON(w, http.StatusOK, plays)
}

// GetPlay returns the full playback payload of a play.
func (h *Handler) GetPlay(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameID")
	if !ok {
		return
	}
	playID, ok := pathID(w, r, "playID")
	if !ok {
		return
	}

	b, err := h.playService.GetPlayJSON(r.Context(), gameID, playID)
	if err != nil {
		respondLookupError(w, "Play not found", "Failed to fetch play", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// GetPlayer returns a player.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	nflID, ok := pathID(w, r, "nflID")
	if !ok {
		return
	}

	player, err := h.playerService.GetPlayer(r.Context(), nflID)
	if err != nil {
		respondLookupError(w, "Player not found", "Failed to fetch player", err)
		return
	}
	respondJSON(w, http.StatusOK, player)
}

// GetPlayerTrack returns an entity's samples within one game. The ball is
// nflID -1.
func (h *Handler) GetPlayerTrack(w http.ResponseWriter, r *http.Request) {
	nflID, ok := pathID(w, r, "nflID")
	if !ok {
		return
	}
	gameID, ok := pathID(w, r, "gameID")
	if !ok {
		return
	}

	track, err := h.playerService.GetTrack(r.Context(), nflID, gameID)
	if err != nil {
		respondLookupError(w, "No frames for entity in game", "Failed to fetch track", err)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

// pathID parses a numeric path variable, answering 400 when it is not.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, name+" must be numeric", nil)
		return 0, false
	}
	return id, true
}

func optionalInt(r *http.Request, name string) (*int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func respondLookupError(w http.ResponseWriter, notFound, failed string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, notFound, nil)
		return
	}
	respondError(w, http.StatusInternalServerError, failed, err)
}
