package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster(prefix, name string) Roster {
	r := Roster{ID: "team-" + prefix, Name: name}
	for i := 1; i <= RosterSize; i++ {
		r.Players = append(r.Players, RosterPlayer{
			ID:   fmt.Sprintf("%s%d", prefix, i),
			Name: fmt.Sprintf("%s player %d", name, i),
		})
	}
	return r
}

func newMatch(t *testing.T) State {
	t.Helper()
	s, err := NewState(roster("A", "Panthers"), roster("B", "Bulls"))
	require.NoError(t, err)
	return s
}

// putOut marks players out in the given order without scoring anything.
func putOut(s *State, side Side, ids ...string) {
	for _, id := range ids {
		s.setStatus(side, id, StatusOut)
	}
}

func statusOf(t *testing.T, s State, side Side, id string) Status {
	t.Helper()
	team := s.Team(side)
	i := team.indexOf(id)
	require.GreaterOrEqual(t, i, 0, "player %s not on team %s", id, side)
	require.Equal(t, team.Players[i].Status, s.PlayerStats[id].Status, "roster and stats disagree for %s", id)
	return team.Players[i].Status
}

func assertMirrored(t *testing.T, s State) {
	t.Helper()
	for _, side := range []Side{SideA, SideB} {
		team := s.Team(side)
		outs := 0
		for _, p := range team.Players {
			if s.PlayerStats[p.ID].Status != p.Status {
				t.Fatalf("status mismatch for %s: roster=%s stats=%s", p.ID, p.Status, s.PlayerStats[p.ID].Status)
			}
			if p.Status == StatusOut {
				outs++
			}
		}
		if outs != len(team.OutOrder) {
			t.Fatalf("team %s: %d players out but out order holds %v", side, outs, team.OutOrder)
		}
		if n := s.InCount(side); n < 0 || n > RosterSize {
			t.Fatalf("team %s in-count %d out of range", side, n)
		}
	}
}

func TestApply_RaidSuccessScenario(t *testing.T) {
	s := newMatch(t)

	next, out, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1", "B2"}})
	require.NoError(t, err)

	assert.Equal(t, 2, next.TeamA.Score)
	assert.Equal(t, 0, next.TeamB.Score)
	assert.Equal(t, StatusOut, statusOf(t, next, SideB, "B1"))
	assert.Equal(t, StatusOut, statusOf(t, next, SideB, "B2"))
	assert.Empty(t, out.Revived)
	assert.Equal(t, 2, next.RaidNumber)
	assert.Equal(t, SideB, RaidingSide(next.RaidNumber))
	assert.Equal(t, SidePoints{TeamA: 2}, out.Awarded)
	assert.Equal(t, 2, next.PlayerStats["A1"].RaidPoints)
	assert.Equal(t, 2, next.PlayerStats["A1"].TotalPoints)
	assertMirrored(t, next)
}

func TestApply_BonusEligibility(t *testing.T) {
	cases := []struct {
		name        string
		defendersIn int
		wantScoreA  int
		wantIgnored bool
	}{
		{name: "seven defenders honours bonus", defendersIn: 7, wantScoreA: 2},
		{name: "six defenders honours bonus", defendersIn: 6, wantScoreA: 2},
		{name: "five defenders ignores bonus", defendersIn: 5, wantScoreA: 1, wantIgnored: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newMatch(t)
			outIDs := []string{"B7", "B6"}[:RosterSize-tc.defendersIn]
			putOut(&s, SideB, outIDs...)

			next, out, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1"}, BonusTaken: true})
			require.NoError(t, err)
			assert.Equal(t, tc.wantScoreA, next.TeamA.Score)
			assert.Equal(t, tc.wantIgnored, out.BonusIgnored)
			assert.Equal(t, !tc.wantIgnored, out.BonusTaken)
			assert.Equal(t, tc.wantScoreA, next.PlayerStats["A1"].RaidPoints)
		})
	}
}

func TestApply_EmptyRaidBonusNeedsSixDefenders(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideB, "B1", "B2")

	next, out, err := Apply(s, EmptyRaid{RaiderID: "A1", BonusTaken: true})
	require.NoError(t, err)
	assert.Equal(t, 0, next.TeamA.Score)
	assert.True(t, out.BonusIgnored)
	assert.Equal(t, 1, next.EmptyRaids.TeamA)
}

func TestApply_RaidSuccessDefendersDownToThreeScoreOne(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideB, "B7", "B6")

	// five in, two eliminated, three remain
	next, out, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1", "B2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, next.TeamA.Score)
	assert.Equal(t, 1, next.TeamB.Score)
	assert.Equal(t, SidePoints{TeamA: 2, TeamB: 1}, out.Awarded)
}

func TestApply_RaidSuccessRevivesOldestFirst(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideA, "A3", "A1", "A5")

	next, out, err := Apply(s, RaidSuccess{RaiderID: "A2", DefenderIDs: []string{"B1", "B2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A3", "A1"}, out.Revived)
	assert.Equal(t, StatusIn, statusOf(t, next, SideA, "A3"))
	assert.Equal(t, StatusIn, statusOf(t, next, SideA, "A1"))
	assert.Equal(t, StatusOut, statusOf(t, next, SideA, "A5"))
	assert.Equal(t, []string{"A5"}, next.TeamA.OutOrder)
	assertMirrored(t, next)
}

func TestApply_RevivalClampedToOutPlayers(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideA, "A7")

	next, out, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1", "B2", "B3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A7"}, out.Revived)
	assert.Equal(t, RosterSize, next.InCount(SideA))
}

func TestApply_DefenseSuccess(t *testing.T) {
	cases := []struct {
		name      string
		bOut      []string
		wantB     int
		wantSuper bool
	}{
		{name: "normal tackle", wantB: 1},
		{name: "four defenders is not a super tackle", bOut: []string{"B1", "B2", "B3"}, wantB: 1},
		{name: "three defenders is a super tackle", bOut: []string{"B1", "B2", "B3", "B4"}, wantB: 2, wantSuper: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newMatch(t)
			putOut(&s, SideB, tc.bOut...)

			next, out, err := Apply(s, DefenseSuccess{RaiderID: "A1", TacklerIDs: []string{"B5"}})
			require.NoError(t, err)
			assert.Equal(t, tc.wantB, next.TeamB.Score)
			assert.Equal(t, 0, next.TeamA.Score)
			assert.Equal(t, tc.wantSuper, out.SuperTackle)
			assert.Equal(t, StatusOut, statusOf(t, next, SideA, "A1"))
			assert.Equal(t, 1, next.PlayerStats["B5"].DefencePoints)
			if len(tc.bOut) > 0 {
				assert.Equal(t, []string{tc.bOut[0]}, out.Revived)
				assert.Equal(t, StatusIn, statusOf(t, next, SideB, tc.bOut[0]))
			} else {
				assert.Empty(t, out.Revived)
			}
			assertMirrored(t, next)
		})
	}
}

func TestApply_DefenseSuccessWithBonus(t *testing.T) {
	s := newMatch(t)

	next, out, err := Apply(s, DefenseSuccess{RaiderID: "A1", BonusTaken: true})
	require.NoError(t, err)
	assert.Equal(t, 1, next.TeamA.Score)
	assert.Equal(t, 1, next.TeamB.Score)
	assert.True(t, out.BonusTaken)
	assert.Equal(t, 1, next.PlayerStats["A1"].RaidPoints)
}

func TestApply_DoOrDieOnThirdConsecutiveEmptyRaid(t *testing.T) {
	s := newMatch(t)
	steps := []Event{
		EmptyRaid{RaiderID: "A1"}, // raid 1, A count 1
		EmptyRaid{RaiderID: "B1"}, // raid 2
		EmptyRaid{RaiderID: "A2"}, // raid 3, A count 2
		EmptyRaid{RaiderID: "B1"}, // raid 4
	}
	for _, ev := range steps {
		var err error
		s, _, err = Apply(s, ev)
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.EmptyRaids.TeamA)
	require.Equal(t, 2, s.EmptyRaids.TeamB)
	require.Equal(t, 0, s.TeamB.Score)

	next, out, err := Apply(s, EmptyRaid{RaiderID: "A3"})
	require.NoError(t, err)
	assert.True(t, out.DoOrDie)
	assert.Equal(t, StatusOut, statusOf(t, next, SideA, "A3"))
	assert.Equal(t, 1, next.TeamB.Score)
	assert.Equal(t, 0, next.EmptyRaids.TeamA)
	assert.Equal(t, 2, next.EmptyRaids.TeamB)
	assert.Contains(t, out.Commentary(), "Do-or-die")
}

func TestApply_NonEmptyRaidResetsCounter(t *testing.T) {
	s := newMatch(t)
	seq := []Event{
		EmptyRaid{RaiderID: "A1"},
		EmptyRaid{RaiderID: "B1"},
		EmptyRaid{RaiderID: "A1"},
		EmptyRaid{RaiderID: "B1"},
		RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B2"}},
	}
	for _, ev := range seq {
		var err error
		s, _, err = Apply(s, ev)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.EmptyRaids.TeamA)
	assert.Equal(t, 2, s.EmptyRaids.TeamB)

	s, _, err := Apply(s, DefenseSuccess{RaiderID: "B1"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.EmptyRaids.TeamB)
}

func TestApply_AllOutResetsTeamAndAwardsTwo(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideB, "B2", "B3", "B4", "B5", "B6", "B7")

	next, out, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1"}})
	require.NoError(t, err)

	assert.Equal(t, RosterSize, next.InCount(SideB))
	assert.Empty(t, next.TeamB.OutOrder)
	// 1 for the touch, 2 for the all out; B scores 1 for being down to three or fewer
	assert.Equal(t, 3, next.TeamA.Score)
	assert.Equal(t, 1, next.TeamB.Score)
	assert.Equal(t, []Side{SideB}, out.AllOut)
	assert.Equal(t, SidePoints{TeamA: 3, TeamB: 1}, out.Awarded)
	assert.Contains(t, out.Commentary(), "ALL OUT")
	assertMirrored(t, next)
}

func TestApply_AllOutFromTackle(t *testing.T) {
	s := newMatch(t)
	putOut(&s, SideA, "A2", "A3", "A4", "A5", "A6", "A7")

	next, out, err := Apply(s, DefenseSuccess{RaiderID: "A1"})
	require.NoError(t, err)
	assert.Equal(t, []Side{SideA}, out.AllOut)
	assert.Equal(t, RosterSize, next.InCount(SideA))
	assert.Equal(t, 1+allOutBonus, next.TeamB.Score)
}

func TestApply_LobbyTouch(t *testing.T) {
	t.Run("raider touching scores for defence", func(t *testing.T) {
		s := newMatch(t)
		next, out, err := Apply(s, LobbyTouch{PlayerID: "A4", IsRaiderTouching: true})
		require.NoError(t, err)
		assert.Equal(t, StatusOut, statusOf(t, next, SideA, "A4"))
		assert.Equal(t, 1, next.TeamB.Score)
		assert.Equal(t, 0, next.TeamA.Score)
		assert.Equal(t, "Panthers player 4", out.Raider)
		assert.Equal(t, 2, next.RaidNumber)
	})

	t.Run("defender touching scores for raiders", func(t *testing.T) {
		s := newMatch(t)
		s.EmptyRaids.TeamA = 2
		next, _, err := Apply(s, LobbyTouch{PlayerID: "B3"})
		require.NoError(t, err)
		assert.Equal(t, StatusOut, statusOf(t, next, SideB, "B3"))
		assert.Equal(t, 1, next.TeamA.Score)
		assert.Equal(t, 2, next.EmptyRaids.TeamA, "lobby touches leave the counter alone")
	})

	t.Run("side follows the raid number, not the team name", func(t *testing.T) {
		s := newMatch(t)
		s.TeamB.Name = s.TeamA.Name
		s.RaidNumber = 2
		next, _, err := Apply(s, LobbyTouch{PlayerID: "A1"})
		require.NoError(t, err)
		assert.Equal(t, 1, next.TeamB.Score)
		assert.Equal(t, 0, next.TeamA.Score)
	})
}

func TestApply_RejectsInvalidSelection(t *testing.T) {
	base := newMatch(t)
	putOut(&base, SideA, "A7")
	putOut(&base, SideB, "B7")

	cases := []struct {
		name string
		ev   Event
	}{
		{name: "unknown raider", ev: EmptyRaid{RaiderID: "Z9"}},
		{name: "raider from defending team", ev: EmptyRaid{RaiderID: "B1"}},
		{name: "raider already out", ev: RaidSuccess{RaiderID: "A7", DefenderIDs: []string{"B1"}}},
		{name: "raid success without defenders", ev: RaidSuccess{RaiderID: "A1"}},
		{name: "defender from raiding team", ev: RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"A2"}}},
		{name: "defender already out", ev: RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B7"}}},
		{name: "defender listed twice", ev: RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1", "B1"}}},
		{name: "tackler from raiding team", ev: DefenseSuccess{RaiderID: "A1", TacklerIDs: []string{"A2"}}},
		{name: "lobby touch raider flag on defender", ev: LobbyTouch{PlayerID: "B1", IsRaiderTouching: true}},
		{name: "lobby touch on out defender", ev: LobbyTouch{PlayerID: "B7"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := base.Clone()
			next, out, err := Apply(base, tc.ev)
			if err == nil || !errors.Is(err, ErrInvalidSelection) {
				t.Fatalf("want ErrInvalidSelection, got %v", err)
			}
			assert.Equal(t, before, next)
			assert.Equal(t, before, base)
			assert.Equal(t, Outcome{}, out)
		})
	}
}

func TestApply_RejectsWhenRaidingTeamCannotRaid(t *testing.T) {
	s := newMatch(t)
	for i := range s.TeamA.Players {
		s.TeamA.Players[i].Status = StatusOut
	}

	_, _, err := Apply(s, EmptyRaid{RaiderID: "A1"})
	require.ErrorIs(t, err, ErrInvalidSelection)
	assert.False(t, s.CanRaid(SideA))
	assert.True(t, s.CanRaid(SideB))
}

type unknownEvent struct{ EmptyRaid }

func TestApply_UnsupportedEvent(t *testing.T) {
	s := newMatch(t)
	_, _, err := Apply(s, unknownEvent{})
	require.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := newMatch(t)
	before := s.Clone()

	_, _, err := Apply(s, RaidSuccess{RaiderID: "A1", DefenderIDs: []string{"B1", "B2"}, BonusTaken: true})
	require.NoError(t, err)
	assert.Equal(t, before, s)
}

// randomEvent picks a legal event for the current raid.
func randomEvent(rng *rand.Rand, s State) Event {
	raiding := RaidingSide(s.RaidNumber)
	inIDs := func(side Side) []string {
		var ids []string
		for _, p := range s.Team(side).Players {
			if p.Status == StatusIn {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
	raiders := inIDs(raiding)
	defenders := inIDs(raiding.Other())
	raider := raiders[rng.Intn(len(raiders))]
	bonus := rng.Intn(2) == 0

	switch rng.Intn(5) {
	case 0:
		rng.Shuffle(len(defenders), func(i, j int) { defenders[i], defenders[j] = defenders[j], defenders[i] })
		n := 1 + rng.Intn(min(3, len(defenders)))
		return RaidSuccess{RaiderID: raider, DefenderIDs: defenders[:n], BonusTaken: bonus}
	case 1:
		return DefenseSuccess{RaiderID: raider, TacklerIDs: defenders[:1], BonusTaken: bonus}
	case 2:
		return LobbyTouch{PlayerID: raider, IsRaiderTouching: true}
	case 3:
		return LobbyTouch{PlayerID: defenders[rng.Intn(len(defenders))]}
	default:
		return EmptyRaid{RaiderID: raider, BonusTaken: bonus}
	}
}

func TestApply_RandomSequencesKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			s := newMatch(t)
			awarded := 0

			for i := 0; i < 300; i++ {
				ev := randomEvent(rng, s)
				next, out, err := Apply(s, ev)
				require.NoError(t, err, "event %d: %#v", i, ev)

				require.GreaterOrEqual(t, next.TeamA.Score, s.TeamA.Score)
				require.GreaterOrEqual(t, next.TeamB.Score, s.TeamB.Score)
				require.Equal(t, s.RaidNumber+1, next.RaidNumber)
				require.Equal(t, next.TeamA.Score-s.TeamA.Score, out.Awarded.TeamA)
				require.Equal(t, next.TeamB.Score-s.TeamB.Score, out.Awarded.TeamB)
				for _, c := range []int{next.EmptyRaids.TeamA, next.EmptyRaids.TeamB} {
					require.True(t, c >= 0 && c < doOrDieThreshold, "empty raid count %d", c)
				}
				require.True(t, next.CanRaid(SideA) && next.CanRaid(SideB))
				assertMirrored(t, next)

				awarded += out.Awarded.Total()
				s = next
			}
			assert.Equal(t, awarded, s.TeamA.Score+s.TeamB.Score)
		})
	}
}

func TestNewState_ValidatesRosters(t *testing.T) {
	short := roster("A", "Panthers")
	short.Players = short.Players[:5]
	clash := roster("B", "Bulls")
	clash.Players[0].ID = "A1"
	blank := roster("B", "Bulls")
	blank.Players[2].ID = " "
	unnamed := roster("B", "")

	cases := []struct {
		name string
		a, b Roster
	}{
		{name: "short roster", a: short, b: roster("B", "Bulls")},
		{name: "duplicate id across teams", a: roster("A", "Panthers"), b: clash},
		{name: "blank id", a: roster("A", "Panthers"), b: blank},
		{name: "missing team name", a: roster("A", "Panthers"), b: unnamed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewState(tc.a, tc.b)
			require.ErrorIs(t, err, ErrInvalidRoster)
		})
	}

	s := newMatch(t)
	assert.Equal(t, 1, s.RaidNumber)
	assert.Len(t, s.PlayerStats, 2*RosterSize)
	assert.True(t, s.Initialized())
	assert.False(t, State{}.Initialized())
}

func TestResult(t *testing.T) {
	s := newMatch(t)
	assert.True(t, s.Result().Draw)

	s.TeamB.Score = 4
	r := s.Result()
	assert.False(t, r.Draw)
	assert.Equal(t, SideB, r.Winner)
	assert.Equal(t, "Bulls", r.WinnerName)
}

func TestRaidingSide(t *testing.T) {
	for n, want := range map[int]Side{1: SideA, 2: SideB, 3: SideA, 10: SideB} {
		if got := RaidingSide(n); got != want {
			t.Fatalf("RaidingSide(%d): got %s, want %s", n, got, want)
		}
	}
}
