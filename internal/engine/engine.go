package engine

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidSelection covers every rejected event: unknown ids, players on the wrong side or
// already out, a missing defender list, or a raiding team that cannot raid.
var ErrInvalidSelection = errors.New("invalid selection")
var ErrInvalidRoster = errors.New("invalid roster")
var ErrUnsupportedEvent = errors.New("unsupported event")

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

type Status string

const (
	StatusIn  Status = "in"
	StatusOut Status = "out"
)

const (
	RosterSize = 7

	// bonus points need at least this many defenders on the mat
	bonusMinDefenders = 6
	superTackleMax    = 3
	doOrDieThreshold  = 3
	allOutBonus       = 2
)

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Score   int      `json:"score"`
	Players []Player `json:"players"`
	// OutOrder holds ids of the team's out players, oldest first.
	OutOrder []string `json:"outOrder"`
}

type PlayerStat struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalPoints   int    `json:"totalPoints"`
	RaidPoints    int    `json:"raidPoints"`
	DefencePoints int    `json:"defencePoints"`
	Status        Status `json:"status"`
}

type EmptyRaidCounts struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

func (c EmptyRaidCounts) Get(side Side) int {
	if side == SideA {
		return c.TeamA
	}
	return c.TeamB
}

func (c *EmptyRaidCounts) Set(side Side, n int) {
	if side == SideA {
		c.TeamA = n
	} else {
		c.TeamB = n
	}
}

type State struct {
	TeamA       Team                  `json:"teamA"`
	TeamB       Team                  `json:"teamB"`
	RaidNumber  int                   `json:"raidNumber"`
	EmptyRaids  EmptyRaidCounts       `json:"emptyRaidCounts"`
	PlayerStats map[string]PlayerStat `json:"playerStats"`
}

type EventKind string

const (
	KindRaidSuccess    EventKind = "raidSuccess"
	KindDefenseSuccess EventKind = "defenseSuccess"
	KindEmptyRaid      EventKind = "emptyRaid"
	KindLobbyTouch     EventKind = "lobbyTouch"
)

// Event is one resolved raid as reported by the scorer.
type Event interface {
	Kind() EventKind
	isRaidEvent()
}

type RaidSuccess struct {
	RaiderID    string
	DefenderIDs []string
	BonusTaken  bool
}

type DefenseSuccess struct {
	RaiderID string
	// TacklerIDs is optional; each listed defender is credited a defence point.
	TacklerIDs []string
	BonusTaken bool
}

type EmptyRaid struct {
	RaiderID   string
	BonusTaken bool
}

type LobbyTouch struct {
	PlayerID         string
	IsRaiderTouching bool
}

func (RaidSuccess) Kind() EventKind    { return KindRaidSuccess }
func (DefenseSuccess) Kind() EventKind { return KindDefenseSuccess }
func (EmptyRaid) Kind() EventKind      { return KindEmptyRaid }
func (LobbyTouch) Kind() EventKind     { return KindLobbyTouch }

func (RaidSuccess) isRaidEvent()    {}
func (DefenseSuccess) isRaidEvent() {}
func (EmptyRaid) isRaidEvent()      {}
func (LobbyTouch) isRaidEvent()     {}

// Apply resolves one raid against s. The input state is never modified; on error it is
// returned as-is together with a zero Outcome.
func Apply(s State, ev Event) (State, Outcome, error) {
	raiding := RaidingSide(s.RaidNumber)
	defending := raiding.Other()

	if !s.CanRaid(raiding) {
		return s, Outcome{}, fmt.Errorf("%w: %s has no players able to raid", ErrInvalidSelection, s.team(raiding).Name)
	}

	next := s.Clone()
	out := Outcome{RaidNumber: s.RaidNumber, RaidingSide: raiding}

	switch e := ev.(type) {
	case RaidSuccess:
		if err := s.checkActive(raiding, e.RaiderID, "raider"); err != nil {
			return s, Outcome{}, err
		}
		if len(e.DefenderIDs) == 0 {
			return s, Outcome{}, fmt.Errorf("%w: a successful raid needs at least one defender", ErrInvalidSelection)
		}
		if err := s.checkDefenders(defending, e.DefenderIDs); err != nil {
			return s, Outcome{}, err
		}
		next.resolveRaidSuccess(e, &out)

	case DefenseSuccess:
		if err := s.checkActive(raiding, e.RaiderID, "raider"); err != nil {
			return s, Outcome{}, err
		}
		if err := s.checkDefenders(defending, e.TacklerIDs); err != nil {
			return s, Outcome{}, err
		}
		next.resolveDefenseSuccess(e, &out)

	case EmptyRaid:
		if err := s.checkActive(raiding, e.RaiderID, "raider"); err != nil {
			return s, Outcome{}, err
		}
		next.resolveEmptyRaid(e, &out)

	case LobbyTouch:
		side := defending
		role := "defender"
		if e.IsRaiderTouching {
			side, role = raiding, "raider"
		}
		if err := s.checkActive(side, e.PlayerID, role); err != nil {
			return s, Outcome{}, err
		}
		next.resolveLobbyTouch(e, &out)

	default:
		return s, Outcome{}, fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}

	out.Kind = ev.Kind()
	for _, side := range []Side{SideA, SideB} {
		if next.resetIfAllOut(side) {
			out.AllOut = append(out.AllOut, side)
			next.award(side.Other(), allOutBonus, &out)
		}
	}
	next.RaidNumber++
	return next, out, nil
}

func (s *State) resolveRaidSuccess(e RaidSuccess, out *Outcome) {
	raiding := RaidingSide(s.RaidNumber)
	defending := raiding.Other()

	bonus := s.bonusEligible(e.BonusTaken)
	points := len(e.DefenderIDs) + boolToInt(bonus)
	s.award(raiding, points, out)
	s.creditRaider(e.RaiderID, points)

	for _, id := range e.DefenderIDs {
		s.setStatus(defending, id, StatusOut)
	}
	if s.InCount(defending) <= superTackleMax {
		s.award(defending, 1, out)
	}
	out.Revived = s.revive(raiding, len(e.DefenderIDs))
	s.EmptyRaids.Set(raiding, 0)

	out.Raider = s.PlayerStats[e.RaiderID].Name
	out.Defenders = s.names(e.DefenderIDs)
	out.BonusTaken = bonus
	out.BonusIgnored = e.BonusTaken && !bonus
}

func (s *State) resolveDefenseSuccess(e DefenseSuccess, out *Outcome) {
	raiding := RaidingSide(s.RaidNumber)
	defending := raiding.Other()

	bonus := s.bonusEligible(e.BonusTaken)
	super := s.InCount(defending) <= superTackleMax
	points := 1
	if super {
		points = 2
	}
	s.award(defending, points, out)
	for _, id := range e.TacklerIDs {
		s.creditDefender(id, 1)
	}
	if bonus {
		s.award(raiding, 1, out)
		s.creditRaider(e.RaiderID, 1)
	}

	s.setStatus(raiding, e.RaiderID, StatusOut)
	out.Revived = s.revive(defending, 1)
	s.EmptyRaids.Set(raiding, 0)

	out.Raider = s.PlayerStats[e.RaiderID].Name
	out.Defenders = s.names(e.TacklerIDs)
	out.BonusTaken = bonus
	out.BonusIgnored = e.BonusTaken && !bonus
	out.SuperTackle = super
}

func (s *State) resolveEmptyRaid(e EmptyRaid, out *Outcome) {
	raiding := RaidingSide(s.RaidNumber)
	defending := raiding.Other()

	bonus := s.bonusEligible(e.BonusTaken)
	if bonus {
		s.award(raiding, 1, out)
		s.creditRaider(e.RaiderID, 1)
	}

	count := s.EmptyRaids.Get(raiding) + 1
	if count >= doOrDieThreshold {
		s.setStatus(raiding, e.RaiderID, StatusOut)
		s.award(defending, 1, out)
		count = 0
		out.DoOrDie = true
	}
	s.EmptyRaids.Set(raiding, count)

	out.Raider = s.PlayerStats[e.RaiderID].Name
	out.BonusTaken = bonus
	out.BonusIgnored = e.BonusTaken && !bonus
}

func (s *State) resolveLobbyTouch(e LobbyTouch, out *Outcome) {
	raiding := RaidingSide(s.RaidNumber)
	touched, scoring := raiding.Other(), raiding
	if e.IsRaiderTouching {
		touched, scoring = raiding, raiding.Other()
	}
	s.setStatus(touched, e.PlayerID, StatusOut)
	s.award(scoring, 1, out)

	name := s.PlayerStats[e.PlayerID].Name
	if e.IsRaiderTouching {
		out.Raider = name
	} else {
		out.Defenders = []string{name}
	}
}

func (s *State) bonusEligible(claimed bool) bool {
	defending := RaidingSide(s.RaidNumber).Other()
	return claimed && s.InCount(defending) >= bonusMinDefenders
}

func (s *State) award(side Side, points int, out *Outcome) {
	if points <= 0 {
		return
	}
	s.team(side).Score += points
	out.Awarded.Add(side, points)
}

func (s *State) creditRaider(id string, points int) {
	st := s.PlayerStats[id]
	st.RaidPoints += points
	st.TotalPoints += points
	s.PlayerStats[id] = st
}

func (s *State) creditDefender(id string, points int) {
	st := s.PlayerStats[id]
	st.DefencePoints += points
	st.TotalPoints += points
	s.PlayerStats[id] = st
}

// setStatus keeps the roster entry, the stat entry and the out queue in step.
func (s *State) setStatus(side Side, id string, status Status) {
	t := s.team(side)
	i := t.indexOf(id)
	if i < 0 || t.Players[i].Status == status {
		return
	}
	t.Players[i].Status = status
	if status == StatusOut {
		t.OutOrder = append(t.OutOrder, id)
	} else if j := slices.Index(t.OutOrder, id); j >= 0 {
		t.OutOrder = slices.Delete(t.OutOrder, j, j+1)
	}
	st := s.PlayerStats[id]
	st.Status = status
	s.PlayerStats[id] = st
}

// revive brings back up to n of the side's out players, oldest first. Asking for more
// than are out is clamped.
func (s *State) revive(side Side, n int) []string {
	t := s.team(side)
	n = min(n, len(t.OutOrder))
	if n <= 0 {
		return nil
	}
	ids := slices.Clone(t.OutOrder[:n])
	for _, id := range ids {
		s.setStatus(side, id, StatusIn)
	}
	return ids
}

func (s *State) resetIfAllOut(side Side) bool {
	t := s.team(side)
	if len(t.Players) == 0 || s.InCount(side) > 0 {
		return false
	}
	for _, p := range t.Players {
		s.setStatus(side, p.ID, StatusIn)
	}
	return true
}

func (s State) checkActive(side Side, id, role string) error {
	t := s.team(side)
	i := t.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s %q is not on %s", ErrInvalidSelection, role, id, t.Name)
	}
	if t.Players[i].Status != StatusIn {
		return fmt.Errorf("%w: %s %q is out", ErrInvalidSelection, role, id)
	}
	return nil
}

func (s State) checkDefenders(side Side, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: defender %q listed twice", ErrInvalidSelection, id)
		}
		seen[id] = true
		if err := s.checkActive(side, id, "defender"); err != nil {
			return err
		}
	}
	return nil
}

func (s State) names(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.PlayerStats[id].Name
	}
	return out
}

func (t *Team) indexOf(id string) int {
	return slices.IndexFunc(t.Players, func(p Player) bool { return p.ID == id })
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
