package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type RosterPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Roster struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Players []RosterPlayer `json:"players"`
}

// NewState builds the opening state of a match: every player in, no score, raid 1.
func NewState(a, b Roster) (State, error) {
	seen := map[string]bool{}
	for _, r := range []Roster{a, b} {
		if strings.TrimSpace(r.Name) == "" {
			return State{}, fmt.Errorf("%w: team name is required", ErrInvalidRoster)
		}
		if len(r.Players) != RosterSize {
			return State{}, fmt.Errorf("%w: %s has %d players, want %d", ErrInvalidRoster, r.Name, len(r.Players), RosterSize)
		}
		for _, p := range r.Players {
			if strings.TrimSpace(p.ID) == "" {
				return State{}, fmt.Errorf("%w: %s has a player without an id", ErrInvalidRoster, r.Name)
			}
			if seen[p.ID] {
				return State{}, fmt.Errorf("%w: player id %q appears twice", ErrInvalidRoster, p.ID)
			}
			seen[p.ID] = true
		}
	}

	s := State{
		TeamA:       newTeam(a),
		TeamB:       newTeam(b),
		RaidNumber:  1,
		PlayerStats: make(map[string]PlayerStat, 2*RosterSize),
	}
	for _, t := range []Team{s.TeamA, s.TeamB} {
		for _, p := range t.Players {
			s.PlayerStats[p.ID] = PlayerStat{ID: p.ID, Name: p.Name, Status: StatusIn}
		}
	}
	return s, nil
}

func newTeam(r Roster) Team {
	t := Team{ID: r.ID, Name: r.Name, Players: make([]Player, 0, len(r.Players)), OutOrder: []string{}}
	for _, p := range r.Players {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		t.Players = append(t.Players, Player{ID: p.ID, Name: name, Status: StatusIn})
	}
	return t
}

// Clone returns a deep copy; Apply works on a clone so callers keep their state intact.
func (s State) Clone() State {
	c := s
	c.TeamA = s.TeamA.clone()
	c.TeamB = s.TeamB.clone()
	c.PlayerStats = maps.Clone(s.PlayerStats)
	return c
}

func (t Team) clone() Team {
	c := t
	c.Players = slices.Clone(t.Players)
	c.OutOrder = slices.Clone(t.OutOrder)
	return c
}

func (s *State) team(side Side) *Team {
	if side == SideA {
		return &s.TeamA
	}
	return &s.TeamB
}

func (s State) Team(side Side) Team {
	return *s.team(side)
}

// Initialized reports whether the state carries rosters; the zero State does not.
func (s State) Initialized() bool {
	return len(s.TeamA.Players) > 0 && len(s.TeamB.Players) > 0
}

type Result struct {
	Winner     Side   `json:"winner,omitempty"`
	WinnerName string `json:"winnerName,omitempty"`
	Draw       bool   `json:"draw"`
	ScoreA     int    `json:"scoreA"`
	ScoreB     int    `json:"scoreB"`
}

// Result compares the final scores: higher wins, equal is a draw.
func (s State) Result() Result {
	r := Result{ScoreA: s.TeamA.Score, ScoreB: s.TeamB.Score}
	switch {
	case r.ScoreA > r.ScoreB:
		r.Winner, r.WinnerName = SideA, s.TeamA.Name
	case r.ScoreB > r.ScoreA:
		r.Winner, r.WinnerName = SideB, s.TeamB.Name
	default:
		r.Draw = true
	}
	return r
}
