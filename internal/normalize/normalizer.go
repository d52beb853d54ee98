// Package normalize turns raw tracking samples into canonical frames: one
// attack direction, cartesian velocity, resolved team roles, and a total
// entity key.
package normalize

import (
	"database/sql"
	"math"

	"github.com/fortuna/metapitch/internal/store"
)

const (
	// DefaultFieldLength and DefaultFieldWidth are the playing surface in yards.
	DefaultFieldLength = 120.0
	DefaultFieldWidth  = 53.3

	// DefaultBallLabel is the club value tracking sources use for the ball.
	DefaultBallLabel = "football"

	// DefaultSource tags rows from the public tracking dataset.
	DefaultSource = "kaggle"

	// MirroredDirection is the attack direction that gets flipped onto the
	// canonical one.
	MirroredDirection = "left"
)

// RawFrame is one tracking sample as read from a source file. Invalid Null*
// fields were missing or unparsable. Malformed is set when a key column
// could not be parsed and was read as zero. BadEntity is set when the entity
// id cell held a value that is not an id; such a row has no usable key.
type RawFrame struct {
	GameID        int64
	PlayID        int64
	FrameID       int64
	NflID         sql.NullInt64
	DisplayName   sql.NullString
	JerseyNumber  sql.NullInt64
	Club          string
	PlayDirection string
	X             sql.NullFloat64
	Y             sql.NullFloat64
	Speed         sql.NullFloat64
	Accel         sql.NullFloat64
	Orientation   sql.NullFloat64
	Direction     sql.NullFloat64
	Event         sql.NullString
	Malformed     bool
	BadEntity     bool
}

// BatchStats counts what happened to the rows of one batch.
type BatchStats struct {
	Rows        int `json:"rows"`
	Mirrored    int `json:"mirrored"`
	Coerced     int `json:"coerced"`
	UnknownTeam int `json:"unknown_team"`
	Ball        int `json:"ball"`
	Rejected    int `json:"rejected"`
}

// Add accumulates o into s.
func (s *BatchStats) Add(o BatchStats) {
	s.Rows += o.Rows
	s.Mirrored += o.Mirrored
	s.Coerced += o.Coerced
	s.UnknownTeam += o.UnknownTeam
	s.Ball += o.Ball
	s.Rejected += o.Rejected
}

// Normalizer holds the field geometry and labels. It has no other state, so
// one value can serve any number of batches.
type Normalizer struct {
	FieldLength float64
	FieldWidth  float64
	BallLabel   string
	Source      string
}

// New returns a Normalizer for the given field. Zero dimensions fall back to
// the defaults.
func New(fieldLength, fieldWidth float64, source string) *Normalizer {
	if fieldLength <= 0 {
		fieldLength = DefaultFieldLength
	}
	if fieldWidth <= 0 {
		fieldWidth = DefaultFieldWidth
	}
	if source == "" {
		source = DefaultSource
	}
	return &Normalizer{
		FieldLength: fieldLength,
		FieldWidth:  fieldWidth,
		BallLabel:   DefaultBallLabel,
		Source:      source,
	}
}

// Normalize returns one canonical frame per keyable raw row, in input order.
// Rows flagged BadEntity are dropped and counted as Rejected and Coerced.
func (n *Normalizer) Normalize(batch []RawFrame, lookup GameLookup) ([]store.Frame, BatchStats) {
	return n.NormalizeInto(make([]store.Frame, 0, len(batch)), batch, lookup)
}

// NormalizeInto is Normalize writing into dst[:0], growing it only when its
// capacity is below len(batch).
func (n *Normalizer) NormalizeInto(dst []store.Frame, batch []RawFrame, lookup GameLookup) ([]store.Frame, BatchStats) {
	dst = dst[:0]
	var stats BatchStats
	for i := range batch {
		if batch[i].BadEntity {
			stats.Rejected++
			stats.Coerced++
			continue
		}
		dst = append(dst, n.frame(&batch[i], lookup, &stats))
	}
	stats.Rows = len(batch)
	return dst, stats
}

func (n *Normalizer) frame(r *RawFrame, lookup GameLookup, stats *BatchStats) store.Frame {
	coerced := r.Malformed
	value := func(v sql.NullFloat64) float64 {
		if !v.Valid || math.IsNaN(v.Float64) || math.IsInf(v.Float64, 0) {
			coerced = true
			return 0
		}
		return v.Float64
	}

	x, y := value(r.X), value(r.Y)
	s, a := value(r.Speed), value(r.Accel)
	o, dir := value(r.Orientation), value(r.Direction)

	if r.PlayDirection == MirroredDirection {
		x = n.FieldLength - x
		y = n.FieldWidth - y
		o = rotate180(o)
		dir = rotate180(dir)
		stats.Mirrored++
	}

	rad := dir * math.Pi / 180
	vx := s * math.Cos(rad)
	vy := s * math.Sin(rad)

	team := n.resolveTeam(r, lookup)
	switch team {
	case store.RoleUnknown:
		stats.UnknownTeam++
	case store.RoleBall:
		stats.Ball++
	}
	if coerced {
		stats.Coerced++
	}

	entity := store.BallEntityID
	if r.NflID.Valid {
		entity = r.NflID.Int64
	}

	return store.Frame{
		GameID:       r.GameID,
		PlayID:       r.PlayID,
		FrameID:      r.FrameID,
		NflID:        entity,
		X:            round2(x),
		Y:            round2(y),
		Speed:        round2(s),
		Accel:        round2(a),
		VX:           round2(vx),
		VY:           round2(vy),
		Orientation:  round2(o),
		Direction:    round2(dir),
		Team:         team,
		JerseyNumber: r.JerseyNumber,
		DisplayName:  r.DisplayName,
		Event:        r.Event,
		Source:       n.Source,
	}
}

func (n *Normalizer) resolveTeam(r *RawFrame, lookup GameLookup) store.TeamRole {
	if r.Club == n.BallLabel {
		return store.RoleBall
	}
	teams, ok := lookup.Teams(r.GameID)
	if !ok || r.Club == "" {
		return store.RoleUnknown
	}
	switch r.Club {
	case teams.Home:
		return store.RoleHome
	case teams.Away:
		return store.RoleAway
	}
	return store.RoleUnknown
}

// rotate180 turns an angle around, keeping the result in [0, 360).
func rotate180(deg float64) float64 {
	r := math.Mod(deg+180, 360)
	if r < 0 {
		r += 360
	}
	return r
}

// round2 rounds half to even at two decimals and folds -0 into 0.
func round2(v float64) float64 {
	r := math.RoundToEven(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
