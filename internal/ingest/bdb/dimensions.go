package bdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fortuna/metapitch/internal/logging"
	"github.com/fortuna/metapitch/internal/normalize"
	"github.com/fortuna/metapitch/internal/store"
	"github.com/fortuna/metapitch/internal/store/repository"
)

// ErrDimensionLoad marks a games, players, or plays file that could not be
// loaded. The run cannot continue without dimensions.
var ErrDimensionLoad = errors.New("dimension load failed")

// DimensionLoader reads the three reference files and bulk-inserts them.
type DimensionLoader struct {
	games   *repository.GameRepository
	players *repository.PlayerRepository
	plays   *repository.PlayRepository
}

// NewDimensionLoader creates a loader writing through the repositories of db.
func NewDimensionLoader(db *store.Database) *DimensionLoader {
	return &DimensionLoader{
		games:   repository.NewGameRepository(db),
		players: repository.NewPlayerRepository(db),
		plays:   repository.NewPlayRepository(db),
	}
}

func dimensionErr(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDimensionLoad, path, err)
}

// readAll opens path and calls fn for every data row with its 1-based line
// number.
func readAll(ctx context.Context, path string, cols []column, fn func(src *csvSource, rec []string, line int) error) error {
	src, err := openCSV(path, cols)
	if err != nil {
		return dimensionErr(path, err)
	}
	defer src.Close()

	line := 1
	for {
		rec, err := src.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return dimensionErr(path, fmt.Errorf("line %d: %w", line, err))
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(src, rec, line); err != nil {
			return dimensionErr(path, fmt.Errorf("line %d: %w", line, err))
		}
	}
}

// LoadGames loads the games file and returns the game lookup the normalizer
// needs, along with the number of rows inserted.
func (l *DimensionLoader) LoadGames(ctx context.Context, q store.Querier, path string) (normalize.GameLookup, int, error) {
	var games []store.Game
	err := readAll(ctx, path, gameColumns, func(src *csvSource, rec []string, _ int) error {
		id, ok := requiredInt(src.get(rec, "game_id"))
		if !ok {
			return fmt.Errorf("invalid gameId %q", src.get(rec, "game_id"))
		}
		season, ok := requiredInt(src.get(rec, "season"))
		if !ok {
			return fmt.Errorf("invalid season %q", src.get(rec, "season"))
		}
		week, ok := requiredInt(src.get(rec, "week"))
		if !ok {
			return fmt.Errorf("invalid week %q", src.get(rec, "week"))
		}
		games = append(games, store.Game{
			GameID:    id,
			Season:    int(season),
			Week:      int(week),
			GameDate:  strings.TrimSpace(src.get(rec, "game_date")),
			HomeTeam:  strings.TrimSpace(src.get(rec, "home_team")),
			AwayTeam:  strings.TrimSpace(src.get(rec, "away_team")),
			HomeScore: nullInt(src.get(rec, "home_score")),
			AwayScore: nullInt(src.get(rec, "away_score")),
		})
		return nil
	})
	if err != nil {
		return normalize.GameLookup{}, 0, err
	}

	n, err := l.games.InsertBatch(ctx, q, games)
	if err != nil {
		return normalize.GameLookup{}, 0, dimensionErr(path, err)
	}

	teams := make(map[int64]store.GameTeams, len(games))
	for i := range games {
		teams[games[i].GameID] = store.GameTeams{Home: games[i].HomeTeam, Away: games[i].AwayTeam}
	}

	logging.Info().Str("source", path).Int64("rows", n).Msg("✓ Games loaded")
	return normalize.NewGameLookup(teams), int(n), nil
}

// LoadPlayers loads the players file.
func (l *DimensionLoader) LoadPlayers(ctx context.Context, q store.Querier, path string) (int, error) {
	var players []store.Player
	err := readAll(ctx, path, playerColumns, func(src *csvSource, rec []string, _ int) error {
		id, ok := requiredInt(src.get(rec, "nfl_id"))
		if !ok {
			return fmt.Errorf("invalid nflId %q", src.get(rec, "nfl_id"))
		}
		players = append(players, store.Player{
			NflID:       id,
			DisplayName: strings.TrimSpace(src.get(rec, "display_name")),
			Position:    nullString(src.get(rec, "position")),
			Height:      nullString(src.get(rec, "height")),
			Weight:      nullInt(src.get(rec, "weight")),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	n, err := l.players.InsertBatch(ctx, q, players)
	if err != nil {
		return 0, dimensionErr(path, err)
	}
	logging.Info().Str("source", path).Int64("rows", n).Msg("✓ Players loaded")
	return int(n), nil
}

// LoadPlays loads the plays file. play_direction and frame_count stay NULL;
// frame_count is filled by postprocessing.
func (l *DimensionLoader) LoadPlays(ctx context.Context, q store.Querier, path string) (int, error) {
	var plays []store.Play
	err := readAll(ctx, path, playColumns, func(src *csvSource, rec []string, _ int) error {
		gameID, ok := requiredInt(src.get(rec, "game_id"))
		if !ok {
			return fmt.Errorf("invalid gameId %q", src.get(rec, "game_id"))
		}
		playID, ok := requiredInt(src.get(rec, "play_id"))
		if !ok {
			return fmt.Errorf("invalid playId %q", src.get(rec, "play_id"))
		}
		plays = append(plays, store.Play{
			GameID:         gameID,
			PlayID:         playID,
			Quarter:        nullInt(src.get(rec, "quarter")),
			Down:           nullInt(src.get(rec, "down")),
			YardsToGo:      nullInt(src.get(rec, "yards_to_go")),
			YardlineSide:   nullString(src.get(rec, "yardline_side")),
			YardlineNumber: nullInt(src.get(rec, "yardline_number")),
			OffenseTeam:    nullString(src.get(rec, "offense_team")),
			DefenseTeam:    nullString(src.get(rec, "defense_team")),
			PlayResult:     nullInt(src.get(rec, "play_result")),
			Description:    nullString(src.get(rec, "description")),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	n, err := l.plays.InsertBatch(ctx, q, plays)
	if err != nil {
		return 0, dimensionErr(path, err)
	}
	logging.Info().Str("source", path).Int64("rows", n).Msg("✓ Plays loaded")
	return int(n), nil
}

// DimensionResult counts the rows loaded per reference table.
type DimensionResult struct {
	Games   int `json:"games"`
	Players int `json:"players"`
	Plays   int `json:"plays"`
}

// LoadAll loads games, players, and plays from dir through q.
func (l *DimensionLoader) LoadAll(ctx context.Context, q store.Querier, dir string) (normalize.GameLookup, DimensionResult, error) {
	var res DimensionResult

	path, ok := resolveSource(dir, GamesFile)
	if !ok {
		return normalize.GameLookup{}, res, dimensionErr(path, errors.New("file not found"))
	}
	lookup, n, err := l.LoadGames(ctx, q, path)
	if err != nil {
		return normalize.GameLookup{}, res, err
	}
	res.Games = n

	if path, ok = resolveSource(dir, PlayersFile); !ok {
		return normalize.GameLookup{}, res, dimensionErr(path, errors.New("file not found"))
	}
	if res.Players, err = l.LoadPlayers(ctx, q, path); err != nil {
		return normalize.GameLookup{}, res, err
	}

	if path, ok = resolveSource(dir, PlaysFile); !ok {
		return normalize.GameLookup{}, res, dimensionErr(path, errors.New("file not found"))
	}
	if res.Plays, err = l.LoadPlays(ctx, q, path); err != nil {
		return normalize.GameLookup{}, res, err
	}

	return lookup, res, nil
}
