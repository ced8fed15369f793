// Package types converts between engine values and the wire contract in pkg/types.
package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raidx/scorer/internal/engine"
	wire "github.com/raidx/scorer/pkg/types"
)

var ErrBadMessage = errors.New("bad message")

func DecodeClientMessage(b []byte) (wire.ClientMessage, error) {
	if len(b) == 0 {
		return wire.ClientMessage{}, fmt.Errorf("%w: empty frame", ErrBadMessage)
	}
	var m wire.ClientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return wire.ClientMessage{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if m.Type == "" {
		return wire.ClientMessage{}, fmt.Errorf("%w: missing type", ErrBadMessage)
	}
	return m, nil
}

func DecodeData[T any](m wire.ClientMessage) (T, error) {
	var out T
	if len(m.Data) == 0 {
		return out, fmt.Errorf("%w: empty data for %q", ErrBadMessage, m.Type)
	}
	if err := json.Unmarshal(m.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return out, nil
}

func ToEngineEvent(p wire.RaidEventPayload) (engine.Event, error) {
	switch p.Type {
	case wire.RaidSuccess:
		return engine.RaidSuccess{RaiderID: p.RaiderID, DefenderIDs: p.DefenderIDs, BonusTaken: p.BonusTaken}, nil
	case wire.DefenseSuccess:
		return engine.DefenseSuccess{RaiderID: p.RaiderID, TacklerIDs: p.DefenderIDs, BonusTaken: p.BonusTaken}, nil
	case wire.EmptyRaid:
		return engine.EmptyRaid{RaiderID: p.RaiderID, BonusTaken: p.BonusTaken}, nil
	case wire.LobbyTouch:
		return engine.LobbyTouch{PlayerID: p.PlayerID, IsRaiderTouching: p.IsRaiderTouching}, nil
	default:
		return nil, fmt.Errorf("%w: unknown raid event type %q", ErrBadMessage, p.Type)
	}
}

func ToRosters(p wire.InitPayload) (engine.Roster, engine.Roster) {
	return toRoster(p.TeamA), toRoster(p.TeamB)
}

func toRoster(t wire.TeamRoster) engine.Roster {
	r := engine.Roster{ID: t.ID, Name: t.Name}
	for _, p := range t.Players {
		r.Players = append(r.Players, engine.RosterPlayer{ID: p.ID, Name: p.Name})
	}
	return r
}

func ToGameStats(matchID string, version int, s engine.State) *wire.GameStats {
	gs := &wire.GameStats{
		MatchID:         matchID,
		Version:         version,
		TeamA:           toTeamStats(s.TeamA),
		TeamB:           toTeamStats(s.TeamB),
		PlayerStats:     make(map[string]wire.PlayerStat, len(s.PlayerStats)),
		RaidNumber:      s.RaidNumber,
		RaidingTeam:     string(engine.RaidingSide(s.RaidNumber)),
		EmptyRaidCounts: wire.EmptyRaidCounts{TeamA: s.EmptyRaids.TeamA, TeamB: s.EmptyRaids.TeamB},
	}
	for id, st := range s.PlayerStats {
		gs.PlayerStats[id] = wire.PlayerStat{
			ID:            st.ID,
			Name:          st.Name,
			TotalPoints:   st.TotalPoints,
			RaidPoints:    st.RaidPoints,
			DefencePoints: st.DefencePoints,
			Status:        string(st.Status),
		}
	}
	return gs
}

func toTeamStats(t engine.Team) wire.TeamStats {
	ts := wire.TeamStats{ID: t.ID, Name: t.Name, Score: t.Score, Players: make([]wire.Player, 0, len(t.Players))}
	for _, p := range t.Players {
		ts.Players = append(ts.Players, wire.Player{ID: p.ID, Name: p.Name, Status: string(p.Status)})
	}
	return ts
}

func ToResult(r engine.Result) *wire.Result {
	return &wire.Result{Winner: string(r.Winner), WinnerName: r.WinnerName, Draw: r.Draw}
}

func ToCommentary(o engine.Outcome) *wire.Commentary {
	c := &wire.Commentary{
		Kind:         string(o.Kind),
		RaidNumber:   o.RaidNumber,
		RaidingTeam:  string(o.RaidingSide),
		Raider:       o.Raider,
		Defenders:    o.Defenders,
		Points:       wire.TeamPoints{TeamA: o.Awarded.TeamA, TeamB: o.Awarded.TeamB},
		BonusTaken:   o.BonusTaken,
		BonusIgnored: o.BonusIgnored,
		SuperTackle:  o.SuperTackle,
		DoOrDie:      o.DoOrDie,
		Revived:      o.Revived,
		Text:         o.Commentary(),
	}
	for _, side := range o.AllOut {
		c.AllOut = append(c.AllOut, string(side))
	}
	return c
}

func ErrorMessage(err error) wire.ServerMessage {
	return wire.ServerMessage{Type: wire.MsgError, Error: err.Error()}
}
