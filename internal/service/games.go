package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// GameService handles game-related read logic
type GameService struct {
	gameRepo *repository.GameRepository
}

// NewGameService creates a new game service
func NewGameService(db *store.Database) *GameService {
	return &GameService{
		gameRepo: repository.NewGameRepository(db),
	}
}

// GameView is the API shape of a game.
type GameView struct {
	GameID    int64   `json:"game_id"`
	Season    int     `json:"season"`
	Week      int     `json:"week"`
	GameDate  string  `json:"game_date"`
	HomeTeam  string  `json:"home_team"`
	AwayTeam  string  `json:"away_team"`
	HomeScore *int64  `json:"home_score"`
	AwayScore *int64  `json:"away_score"`
	Stadium   *string `json:"stadium"`
}

func newGameView(g *store.Game) GameView {
	return GameView{
		GameID:    g.GameID,
		Season:    g.Season,
		Week:      g.Week,
		GameDate:  g.GameDate,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		HomeScore: intPtr(g.HomeScore),
		AwayScore: intPtr(g.AwayScore),
		Stadium:   strPtr(g.Stadium),
	}
}

// ListGames returns games most recent first, optionally filtered by season
// and week.
func (s *GameService) ListGames(ctx context.Context, season, week *int) ([]GameView, error) {
	games, err := s.gameRepo.List(ctx, repository.GameFilter{Season: season, Week: week})
	if err != nil {
		return nil, fmt.Errorf("fetching games: %w", err)
	}

	views := make([]GameView, 0, len(games))
	for _, g := range games {
		views = append(views, newGameView(g))
	}
	return views, nil
}

// GetGame retrieves a game by ID
func (s *GameService) GetGame(ctx context.Context, gameID int64) (*GameView, error) {
	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching game: %w", err)
	}
	v := newGameView(game)
	return &v, nil
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
