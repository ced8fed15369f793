package engine

// RaidingSide reports which team raids on the given raid number: odd raids belong to
// team A, even raids to team B.
func RaidingSide(raidNumber int) Side {
	if raidNumber%2 == 0 {
		return SideB
	}
	return SideA
}

// CanRaid reports whether the side has between 1 and RosterSize players on the mat.
func (s State) CanRaid(side Side) bool {
	n := s.InCount(side)
	return n >= 1 && n <= RosterSize
}

func (s State) InCount(side Side) int {
	n := 0
	for _, p := range s.team(side).Players {
		if p.Status == StatusIn {
			n++
		}
	}
	return n
}
