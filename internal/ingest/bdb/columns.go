// Package bdb loads the public tracking dataset: the games, players, and
// plays dimension files and the per-week tracking files.
package bdb

import "fmt"

// Source file names inside the data directory.
const (
	GamesFile   = "games.csv"
	PlayersFile = "players.csv"
	PlaysFile   = "plays.csv"
)

// TrackingFile returns the expected file name of a tracking week.
func TrackingFile(week int) string {
	return fmt.Sprintf("tracking_week_%d.csv", week)
}

// column maps one source header onto a canonical attribute. Required columns
// must be present in the header; optional ones read as NULL when absent.
type column struct {
	source    string
	canonical string
	required  bool
}

var gameColumns = []column{
	{"gameId", "game_id", true},
	{"season", "season", true},
	{"week", "week", true},
	{"gameDate", "game_date", true},
	{"homeTeamAbbr", "home_team", true},
	{"visitorTeamAbbr", "away_team", true},
	{"homeFinalScore", "home_score", false},
	{"visitorFinalScore", "away_score", false},
}

var playerColumns = []column{
	{"nflId", "nfl_id", true},
	{"displayName", "display_name", true},
	{"position", "position", false},
	{"height", "height", false},
	{"weight", "weight", false},
}

var playColumns = []column{
	{"gameId", "game_id", true},
	{"playId", "play_id", true},
	{"quarter", "quarter", false},
	{"down", "down", false},
	{"yardsToGo", "yards_to_go", false},
	{"yardlineSide", "yardline_side", false},
	{"yardlineNumber", "yardline_number", false},
	{"possessionTeam", "offense_team", false},
	{"defensiveTeam", "defense_team", false},
	{"yardsGained", "play_result", false},
	{"playDescription", "description", false},
}

var trackingColumns = []column{
	{"gameId", "game_id", true},
	{"playId", "play_id", true},
	{"frameId", "frame_id", true},
	{"nflId", "nfl_id", false},
	{"displayName", "display_name", false},
	{"jerseyNumber", "jersey_number", false},
	{"club", "team", true},
	{"playDirection", "play_direction", true},
	{"x", "x", true},
	{"y", "y", true},
	{"s", "speed", false},
	{"a", "accel", false},
	{"o", "orientation", false},
	{"dir", "direction", false},
	{"event", "event", false},
}
