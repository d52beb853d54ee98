package store

import (
	"database/sql"
)

// BallEntityID is the entity identifier stored for the ball. Player ids are
// never negative, so the sentinel cannot collide and frames keep a total
// primary key.
const BallEntityID int64 = -1

// TeamRole classifies an entity within its game.
type TeamRole string

const (
	RoleHome    TeamRole = "home"
	RoleAway    TeamRole = "away"
	RoleBall    TeamRole = "ball"
	RoleUnknown TeamRole = "unknown"
)

// GameTeams holds the home and away team codes of one game.
type GameTeams struct {
	Home string
	Away string
}

// Game is one real-world match.
type Game struct {
	GameID    int64          `json:"game_id" db:"game_id"`
	Season    int            `json:"season" db:"season"`
	Week      int            `json:"week" db:"week"`
	GameDate  string         `json:"game_date" db:"game_date"`
	HomeTeam  string         `json:"home_team" db:"home_team"`
	AwayTeam  string         `json:"away_team" db:"away_team"`
	HomeScore sql.NullInt64  `json:"home_score" db:"home_score"`
	AwayScore sql.NullInt64  `json:"away_score" db:"away_score"`
	Stadium   sql.NullString `json:"stadium" db:"stadium"`
}

// Player is a rostered player.
type Player struct {
	NflID        int64          `json:"nfl_id" db:"nfl_id"`
	DisplayName  string         `json:"display_name" db:"display_name"`
	Position     sql.NullString `json:"position" db:"position"`
	JerseyNumber sql.NullInt64  `json:"jersey_number" db:"jersey_number"`
	Height       sql.NullString `json:"height" db:"height"`
	Weight       sql.NullInt64  `json:"weight" db:"weight"`
}

// Play is one play of a game. FrameCount is NULL until postprocessing and
// stays NULL for plays without tracking rows.
type Play struct {
	GameID         int64          `json:"game_id" db:"game_id"`
	PlayID         int64          `json:"play_id" db:"play_id"`
	Quarter        sql.NullInt64  `json:"quarter" db:"quarter"`
	Down           sql.NullInt64  `json:"down" db:"down"`
	YardsToGo      sql.NullInt64  `json:"yards_to_go" db:"yards_to_go"`
	YardlineSide   sql.NullString `json:"yardline_side" db:"yardline_side"`
	YardlineNumber sql.NullInt64  `json:"yardline_number" db:"yardline_number"`
	PlayDirection  sql.NullString `json:"play_direction" db:"play_direction"`
	OffenseTeam    sql.NullString `json:"offense_team" db:"offense_team"`
	DefenseTeam    sql.NullString `json:"defense_team" db:"defense_team"`
	PlayResult     sql.NullInt64  `json:"play_result" db:"play_result"`
	Description    sql.NullString `json:"description" db:"description"`
	FrameCount     sql.NullInt64  `json:"frame_count" db:"frame_count"`
}

// Frame is one canonical tracking sample of one entity. NflID is the entity
// identifier: a player id, or BallEntityID for the ball.
type Frame struct {
	GameID       int64          `db:"game_id"`
	PlayID       int64          `db:"play_id"`
	FrameID      int64          `db:"frame_id"`
	NflID        int64          `db:"nfl_id"`
	X            float64        `db:"x"`
	Y            float64        `db:"y"`
	Speed        float64        `db:"speed"`
	Accel        float64        `db:"accel"`
	VX           float64        `db:"vx"`
	VY           float64        `db:"vy"`
	Orientation  float64        `db:"orientation"`
	Direction    float64        `db:"direction"`
	Team         TeamRole       `db:"team"`
	JerseyNumber sql.NullInt64  `db:"jersey_number"`
	DisplayName  sql.NullString `db:"display_name"`
	Event        sql.NullString `db:"event"`
	Source       string         `db:"source"`
}

// IsBall reports whether the frame describes the ball.
func (f *Frame) IsBall() bool {
	return f.NflID == BallEntityID
}
