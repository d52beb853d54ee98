package normalize

import "github.com/fortuna/metapitch/internal/store"

// GameLookup maps a game id to its home and away team codes. It is built once
// by the games loader and read-only afterwards.
type GameLookup struct {
	teams map[int64]store.GameTeams
}

// NewGameLookup copies m into a lookup.
func NewGameLookup(m map[int64]store.GameTeams) GameLookup {
	teams := make(map[int64]store.GameTeams, len(m))
	for id, t := range m {
		teams[id] = t
	}
	return GameLookup{teams: teams}
}

// Teams returns the team codes of a game.
func (l GameLookup) Teams(gameID int64) (store.GameTeams, bool) {
	t, ok := l.teams[gameID]
	return t, ok
}

// Len returns the number of games in the lookup.
func (l GameLookup) Len() int {
	return len(l.teams)
}
