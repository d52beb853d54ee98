package service

import (
	"context"
	"fmt"

	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// PlayerService handles player-related read logic
type PlayerService struct {
	playerRepo *repository.PlayerRepository
	frameRepo  *repository.FrameRepository
}

// NewPlayerService creates a new player service
func NewPlayerService(db *store.Database) *PlayerService {
	return &PlayerService{
		playerRepo: repository.NewPlayerRepository(db),
		frameRepo:  repository.NewFrameRepository(db, repository.ConflictFail),
	}
}

// PlayerView is the API shape of a player.
type PlayerView struct {
	NflID        int64   `json:"nfl_id"`
	DisplayName  string  `json:"display_name"`
	Position     *string `json:"position"`
	JerseyNumber *int64  `json:"jersey_number"`
	Height       *string `json:"height"`
	Weight       *int64  `json:"weight"`
}

// GetPlayer retrieves a player by nfl id.
func (s *PlayerService) GetPlayer(ctx context.Context, nflID int64) (*PlayerView, error) {
	p, err := s.playerRepo.GetByID(ctx, nflID)
	if err != nil {
		return nil, fmt.Errorf("fetching player: %w", err)
	}
	return &PlayerView{
		NflID:        p.NflID,
		DisplayName:  p.DisplayName,
		Position:     strPtr(p.Position),
		JerseyNumber: intPtr(p.JerseyNumber),
		Height:       strPtr(p.Height),
		Weight:       intPtr(p.Weight),
	}, nil
}

// TrackSample is one tracked position of an entity.
type TrackSample struct {
	PlayID      int64   `json:"play_id"`
	FrameID     int64   `json:"frame_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Speed       float64 `json:"speed"`
	Accel       float64 `json:"accel"`
	VX          float64 `json:"vx"`
	VY          float64 `json:"vy"`
	Orientation float64 `json:"orientation"`
	Direction   float64 `json:"direction"`
	Team        string  `json:"team"`
	Event       *string `json:"event"`
}

// GetTrack returns every sample of an entity within one game, ordered by
// play and frame. An entity with no samples in the game is ErrNotFound.
func (s *PlayerService) GetTrack(ctx context.Context, nflID, gameID int64) ([]TrackSample, error) {
	frames, err := s.frameRepo.ListByEntity(ctx, nflID, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching track: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("entity %d in game %d: %w", nflID, gameID, repository.ErrNotFound)
	}

	track := make([]TrackSample, 0, len(frames))
	for i := range frames {
		f := &frames[i]
		track = append(track, TrackSample{
			PlayID:      f.PlayID,
			FrameID:     f.FrameID,
			X:           f.X,
			Y:           f.Y,
			Speed:       f.Speed,
			Accel:       f.Accel,
			VX:          f.VX,
			VY:          f.VY,
			Orientation: f.Orientation,
			Direction:   f.Direction,
			Team:        string(f.Team),
			Event:       strPtr(f.Event),
		})
	}
	return track, nil
}
