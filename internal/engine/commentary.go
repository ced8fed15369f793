package engine

import (
	"fmt"
	"strings"
)

type SidePoints struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

func (p *SidePoints) Add(side Side, n int) {
	if side == SideA {
		p.TeamA += n
	} else {
		p.TeamB += n
	}
}

func (p SidePoints) Total() int { return p.TeamA + p.TeamB }

// Outcome describes a resolved raid for broadcast. It is not part of the match state.
type Outcome struct {
	Kind         EventKind  `json:"kind"`
	RaidNumber   int        `json:"raidNumber"`
	RaidingSide  Side       `json:"raidingTeam"`
	Raider       string     `json:"raider,omitempty"`
	Defenders    []string   `json:"defenders,omitempty"`
	Awarded      SidePoints `json:"awarded"`
	BonusTaken   bool       `json:"bonusTaken,omitempty"`
	BonusIgnored bool       `json:"bonusIgnored,omitempty"`
	SuperTackle  bool       `json:"superTackle,omitempty"`
	DoOrDie      bool       `json:"doOrDie,omitempty"`
	AllOut       []Side     `json:"allOut,omitempty"`
	Revived      []string   `json:"revived,omitempty"`
}

// Commentary renders the outcome as one line for the live feed.
func (o Outcome) Commentary() string {
	var b strings.Builder
	raiding := o.Awarded.TeamA
	if o.RaidingSide == SideB {
		raiding = o.Awarded.TeamB
	}

	switch o.Kind {
	case KindRaidSuccess:
		fmt.Fprintf(&b, "Raid %d: SUCCESS! %s scored %d, got out: %s.", o.RaidNumber, o.Raider, raiding, strings.Join(o.Defenders, ", "))
	case KindDefenseSuccess:
		if len(o.Defenders) > 0 {
			fmt.Fprintf(&b, "Raid %d: Defence SUCCESS! %s stopped by %s.", o.RaidNumber, o.Raider, strings.Join(o.Defenders, ", "))
		} else {
			fmt.Fprintf(&b, "Raid %d: Defence SUCCESS! %s stopped.", o.RaidNumber, o.Raider)
		}
	case KindEmptyRaid:
		if o.DoOrDie {
			fmt.Fprintf(&b, "Raid %d: Do-or-die raid failed, %s is out.", o.RaidNumber, o.Raider)
		} else {
			fmt.Fprintf(&b, "Raid %d: Empty raid by %s.", o.RaidNumber, o.Raider)
		}
	case KindLobbyTouch:
		if o.Raider != "" {
			fmt.Fprintf(&b, "Raid %d: %s stepped into the lobby and is out.", o.RaidNumber, o.Raider)
		} else {
			fmt.Fprintf(&b, "Raid %d: %s stepped into the lobby and is out.", o.RaidNumber, strings.Join(o.Defenders, ", "))
		}
	default:
		fmt.Fprintf(&b, "Raid %d.", o.RaidNumber)
	}

	if o.BonusTaken {
		b.WriteString(" Bonus taken!")
	}
	if o.SuperTackle {
		b.WriteString(" Super Tackle!")
	}
	for _, side := range o.AllOut {
		fmt.Fprintf(&b, " ALL OUT on team %s!", side)
	}
	return b.String()
}
