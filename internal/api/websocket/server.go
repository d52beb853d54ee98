// Package websocket streams stored plays frame by frame for playback.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fortuna/metapitch/internal/cache"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/metrics"
	"github.com/fortuna/metapitch/internal/service"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message types sent on a playback stream.
const (
	MessagePlay     = "play"
	MessageFrame    = "frame"
	MessageComplete = "complete"
)

// PlayMessage opens a stream with everything except the frames.
type PlayMessage struct {
	Type       string                        `json:"type"`
	GameID     int64                         `json:"gameId"`
	PlayID     int64                         `json:"playId"`
	Meta       service.PlayMeta              `json:"meta"`
	FrameCount int                           `json:"frameCount"`
	Events     map[string]string             `json:"events"`
	Players    map[string]service.EntityInfo `json:"players"`
}

// FrameMessage carries one frame.
type FrameMessage struct {
	Type  string            `json:"type"`
	Index int               `json:"index"`
	Frame service.PlayFrame `json:"frame"`
}

// CompleteMessage ends a stream.
type CompleteMessage struct {
	Type   string `json:"type"`
	Frames int    `json:"frames"`
}

// Server represents the WebSocket server
type Server struct {
	port     string
	server   *http.Server
	plays    *service.PlayService
	fps      int
	pongWait time.Duration
}

// NewServer creates a new WebSocket server
func NewServer(db *store.Database, c cache.PlayCache, fps int) *Server {
	if fps <= 0 {
		fps = 10
	}
	return &Server{
		plays:    service.NewPlayService(db, c),
		fps:      fps,
		pongWait: pongWait,
	}
}

// Handler returns the playback routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws/plays/{gameID}/{playID}", s.handlePlayback).Methods("GET")
	router.HandleFunc("/ws/health", s.handleHealth).Methods("GET")
	return router
}

// Start starts the WebSocket server
func (s *Server) Start(port string) error {
	s.port = port
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info().Str("port", port).Int("fps", s.fps).Msg("WebSocket server listening")
	return s.server.ListenAndServe()
}

// handlePlayback loads the play before upgrading so lookup failures are
// plain HTTP errors.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	gameID, err1 := strconv.ParseInt(vars["gameID"], 10, 64)
	playID, err2 := strconv.ParseInt(vars["playID"], 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "gameId and playId must be numeric", http.StatusBadRequest)
		return
	}

	payload, err := s.plays.GetPlayPayload(r.Context(), gameID, playID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "play not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error().Err(err).Int64("game_id", gameID).Int64("play_id", playID).Msg("Failed to load play")
		http.Error(w, "failed to load play", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	metrics.TrackPlaybackStream(true)
	defer metrics.TrackPlaybackStream(false)

	st := &stream{
		conn:     conn,
		interval: time.Second / time.Duration(s.fps),
		pongWait: s.pongWait,
	}
	if err := st.play(r.Context(), payload); err != nil {
		logging.Debug().Err(err).Int64("game_id", gameID).Int64("play_id", playID).Msg("Playback ended early")
	}
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "fps": %d}`, s.fps)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
