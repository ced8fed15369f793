package types

// GameStats is the full authoritative view of a match. It is sent after every accepted
// mutation and to every newly joined connection.
type GameStats struct {
	MatchID         string                `json:"matchId"`
	Version         int                   `json:"version"`
	TeamA           TeamStats             `json:"teamA"`
	TeamB           TeamStats             `json:"teamB"`
	PlayerStats     map[string]PlayerStat `json:"playerStats"`
	RaidNumber      int                   `json:"raidNumber"`
	RaidingTeam     string                `json:"raidingTeam"` // "A" | "B"
	EmptyRaidCounts EmptyRaidCounts       `json:"emptyRaidCounts"`
	MatchEnded      bool                  `json:"matchEnded,omitempty"`
	Result          *Result               `json:"result,omitempty"`
}

type TeamStats struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Score   int      `json:"score"`
	Players []Player `json:"players"`
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // "in" | "out"
}

type PlayerStat struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalPoints   int    `json:"totalPoints"`
	RaidPoints    int    `json:"raidPoints"`
	DefencePoints int    `json:"defencePoints"`
	Status        string `json:"status"`
}

type EmptyRaidCounts struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

type TeamPoints struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

type Result struct {
	Winner     string `json:"winner,omitempty"` // "A" | "B", empty on a draw
	WinnerName string `json:"winnerName,omitempty"`
	Draw       bool   `json:"draw"`
}

// Commentary describes the raid that produced a gameStats message.
type Commentary struct {
	Kind         string     `json:"kind"`
	RaidNumber   int        `json:"raidNumber"`
	RaidingTeam  string     `json:"raidingTeam"`
	Raider       string     `json:"raider,omitempty"`
	Defenders    []string   `json:"defenders,omitempty"`
	Points       TeamPoints `json:"points"`
	BonusTaken   bool       `json:"bonusTaken,omitempty"`
	BonusIgnored bool       `json:"bonusIgnored,omitempty"`
	SuperTackle  bool       `json:"superTackle,omitempty"`
	DoOrDie      bool       `json:"doOrDie,omitempty"`
	AllOut       []string   `json:"allOut,omitempty"`
	Revived      []string   `json:"revived,omitempty"`
	Text         string     `json:"text"`
}
