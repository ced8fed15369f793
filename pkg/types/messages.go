// Package types is the JSON wire contract between scoring clients and the server.
package types

import "encoding/json"

// Client -> Server
const (
	MsgInit      = "init"      // data: InitPayload, once per match before any raid
	MsgRaidEvent = "raidEvent" // data: RaidEventPayload
	MsgEndMatch  = "endMatch"  // no data
)

// Server -> Client
const (
	MsgGameStats   = "gameStats"
	MsgRequestInit = "requestInit"
	MsgError       = "error"
)

// Raid event variants carried in RaidEventPayload.Type.
const (
	RaidSuccess    = "raidSuccess"
	DefenseSuccess = "defenseSuccess"
	EmptyRaid      = "emptyRaid"
	LobbyTouch     = "lobbyTouch"
)

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type InitPayload struct {
	TeamA TeamRoster `json:"teamA"`
	TeamB TeamRoster `json:"teamB"`
}

type TeamRoster struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Players []RosterPlayer `json:"players"`
}

type RosterPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RaidEventPayload is a tagged union on Type. Fields that do not belong to the
// variant are ignored.
type RaidEventPayload struct {
	Type             string   `json:"type"`
	RaiderID         string   `json:"raiderId,omitempty"`
	DefenderIDs      []string `json:"defenderIds,omitempty"`
	BonusTaken       bool     `json:"bonusTaken,omitempty"`
	PlayerID         string   `json:"playerId,omitempty"`
	IsRaiderTouching bool     `json:"isRaiderTouching,omitempty"`
}

type ServerMessage struct {
	Type  string     `json:"type"`
	Data  *GameStats `json:"data,omitempty"`
	Extra *Extra     `json:"extra,omitempty"`
	Error string     `json:"error,omitempty"`
}

type Extra struct {
	Commentary     *Commentary `json:"commentary,omitempty"`
	CommentaryList []string    `json:"commentaryList,omitempty"`
}
