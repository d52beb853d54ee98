package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/fortuna/metapitch/internal/cache"
	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/metrics"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// BallKey is the entity key of the ball in play payloads.
const BallKey = "ball"

// PlayService assembles play payloads for playback.
type PlayService struct {
	playRepo  *repository.PlayRepository
	frameRepo *repository.FrameRepository
	cache     cache.PlayCache
}

// NewPlayService creates a new play service. A nil cache disables caching.
func NewPlayService(db *store.Database, c cache.PlayCache) *PlayService {
	if c == nil {
		c = cache.NopCache{}
	}
	return &PlayService{
		playRepo:  repository.NewPlayRepository(db),
		frameRepo: repository.NewFrameRepository(db, repository.ConflictFail),
		cache:     c,
	}
}

// PlayMeta carries play context shown next to the field.
type PlayMeta struct {
	Description *string `json:"description"`
	Quarter     *int64  `json:"quarter"`
	Down        *int64  `json:"down"`
	YardsToGo   *int64  `json:"yardsToGo"`
	Offense     *string `json:"offense"`
	Defense     *string `json:"defense"`
}

// EntityInfo identifies one entity of a play.
type EntityInfo struct {
	Name   string `json:"name"`
	Team   string `json:"team"`
	Jersey *int64 `json:"jersey,omitempty"`
}

// PlayFrame holds every entity sample of one frame id.
type PlayFrame struct {
	ID           int64                 `json:"id"`
	Positions    map[string][2]float64 `json:"positions"`
	Velocities   map[string][2]float64 `json:"velocities"`
	Orientations map[string]float64    `json:"orientations"`
}

// PlayPayload is the playback document of one play.
type PlayPayload struct {
	GameID     int64                 `json:"gameId"`
	PlayID     int64                 `json:"playId"`
	Meta       PlayMeta              `json:"meta"`
	FrameCount int                   `json:"frameCount"`
	Events     map[string]string     `json:"events"`
	Players    map[string]EntityInfo `json:"players"`
	Frames     []PlayFrame           `json:"frames"`
	Source     string                `json:"source"`
}

// ListByGame returns the plays of a game.
func (s *PlayService) ListByGame(ctx context.Context, gameID int64) ([]repository.PlaySummary, error) {
	plays, err := s.playRepo.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching plays: %w", err)
	}
	if plays == nil {
		plays = []repository.PlaySummary{}
	}
	return plays, nil
}

// GetPlayPayload builds the playback payload of a play. A play that is
// unknown or has no tracking frames is ErrNotFound.
func (s *PlayService) GetPlayPayload(ctx context.Context, gameID, playID int64) (*PlayPayload, error) {
	play, err := s.playRepo.Get(ctx, gameID, playID)
	if err != nil {
		return nil, fmt.Errorf("fetching play: %w", err)
	}

	rows, err := s.frameRepo.ListByPlay(ctx, gameID, playID)
	if err != nil {
		return nil, fmt.Errorf("fetching frames: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("play %d/%d has no frames: %w", gameID, playID, repository.ErrNotFound)
	}

	return buildPayload(play, rows), nil
}

// GetPlayJSON returns the encoded payload, served from the cache when
// possible. Cache failures fall through to the store.
func (s *PlayService) GetPlayJSON(ctx context.Context, gameID, playID int64) ([]byte, error) {
	if b, ok, err := s.cache.GetPlay(ctx, gameID, playID); err != nil {
		logging.Warn().Err(err).Int64("game_id", gameID).Int64("play_id", playID).Msg("Play cache read failed")
	} else if ok {
		metrics.RecordCacheLookup(true)
		return b, nil
	}
	metrics.RecordCacheLookup(false)

	payload, err := s.GetPlayPayload(ctx, gameID, playID)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding play: %w", err)
	}

	if err := s.cache.SetPlay(ctx, gameID, playID, b); err != nil {
		logging.Warn().Err(err).Int64("game_id", gameID).Int64("play_id", playID).Msg("Play cache write failed")
	}
	return b, nil
}

// buildPayload groups rows ordered by (frame_id, nfl_id) into frames.
func buildPayload(play *store.Play, rows []store.Frame) *PlayPayload {
	p := &PlayPayload{
		GameID: play.GameID,
		PlayID: play.PlayID,
		Meta: PlayMeta{
			Description: strPtr(play.Description),
			Quarter:     intPtr(play.Quarter),
			Down:        intPtr(play.Down),
			YardsToGo:   intPtr(play.YardsToGo),
			Offense:     strPtr(play.OffenseTeam),
			Defense:     strPtr(play.DefenseTeam),
		},
		Events:  make(map[string]string),
		Players: make(map[string]EntityInfo),
		Source:  rows[0].Source,
	}

	var cur *PlayFrame
	for i := range rows {
		r := &rows[i]
		key := entityKey(r)

		if _, ok := p.Players[key]; !ok {
			p.Players[key] = entityInfo(r)
		}
		if r.Event.Valid && r.Event.String != "" {
			p.Events[strconv.FormatInt(r.FrameID, 10)] = r.Event.String
		}

		if cur == nil || cur.ID != r.FrameID {
			p.Frames = append(p.Frames, PlayFrame{
				ID:           r.FrameID,
				Positions:    make(map[string][2]float64),
				Velocities:   make(map[string][2]float64),
				Orientations: make(map[string]float64),
			})
			cur = &p.Frames[len(p.Frames)-1]
		}
		cur.Positions[key] = [2]float64{r.X, r.Y}
		cur.Velocities[key] = [2]float64{r.VX, r.VY}
		cur.Orientations[key] = r.Orientation
	}
	p.FrameCount = len(p.Frames)
	return p
}

func entityKey(f *store.Frame) string {
	if f.IsBall() {
		return BallKey
	}
	return strconv.FormatInt(f.NflID, 10)
}

func entityInfo(f *store.Frame) EntityInfo {
	info := EntityInfo{Team: string(f.Team)}
	switch {
	case f.DisplayName.Valid && f.DisplayName.String != "":
		info.Name = f.DisplayName.String
	case f.IsBall():
		info.Name = "Ball"
	default:
		info.Name = "Unknown"
	}
	if f.JerseyNumber.Valid {
		j := f.JerseyNumber.Int64
		info.Jersey = &j
	}
	return info
}
