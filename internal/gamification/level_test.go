package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraGuardAPI/internal/stats"
)

func TestComputeLevel(t *testing.T) {
	cases := map[int]int{
		0:    1,
		1:    1,
		99:   1,
		100:  2,
		399:  2,
		400:  3,
		899:  3,
		900:  4,
		2500: 6,
		-50:  1,
	}
	for xp, want := range cases {
		assert.Equal(t, want, ComputeLevel(xp), "xp=%d", xp)
	}
}

func TestComputeLevelIsMonotonic(t *testing.T) {
	prev := ComputeLevel(0)
	for xp := 1; xp <= 50000; xp++ {
		lvl := ComputeLevel(xp)
		require.GreaterOrEqual(t, lvl, prev, "level dropped at xp=%d", xp)
		prev = lvl
	}
}

func TestXPForLevel(t *testing.T) {
	assert.Equal(t, 0, XPForLevel(1))
	assert.Equal(t, 100, XPForLevel(2))
	assert.Equal(t, 400, XPForLevel(3))
	assert.Equal(t, 100, XPForNextLevel(1))
	assert.Equal(t, 400, XPForNextLevel(2))

	for level := 1; level < 30; level++ {
		assert.Equal(t, level, ComputeLevel(XPForLevel(level)))
		assert.Equal(t, XPForLevel(level+1), XPForNextLevel(level))
	}
}

func TestProgress(t *testing.T) {
	p := Progress(250)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 100, p.LevelStartXP)
	assert.Equal(t, 400, p.NextLevelXP)
	assert.Equal(t, 150, p.XPIntoLevel)
	assert.Equal(t, 300, p.XPNeededForLevel)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)

	assert.InDelta(t, 0.0, Progress(0).Fraction, 1e-9)
}

func TestAddXP(t *testing.T) {
	s := stats.New("user_1")

	next, leveledUp, err := AddXP(s, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, next.TotalXP)
	assert.Equal(t, 1, next.Level)
	assert.False(t, leveledUp)

	next, leveledUp, err = AddXP(next, 50)
	require.NoError(t, err)
	assert.Equal(t, 100, next.TotalXP)
	assert.Equal(t, 2, next.Level)
	assert.True(t, leveledUp)

	once, _, err := AddXP(s, 100)
	require.NoError(t, err)
	assert.Equal(t, once.TotalXP, next.TotalXP)
	assert.Equal(t, once.Level, next.Level)
}

func TestAddXPRejectsNonPositive(t *testing.T) {
	s := stats.New("user_1")
	s.TotalXP = 70

	for _, amount := range []int{0, -10} {
		next, leveledUp, err := AddXP(s, amount)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.False(t, leveledUp)
		assert.Equal(t, s, next)
	}
}

func TestAddXPLeveledUpMatchesLevels(t *testing.T) {
	for oldXP := 0; oldXP < 1200; oldXP += 37 {
		for _, amount := range []int{1, 25, 99, 300} {
			s := stats.New("u")
			s.TotalXP = oldXP
			s.Level = ComputeLevel(oldXP)

			next, leveledUp, err := AddXP(s, amount)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, next.TotalXP, s.TotalXP)
			assert.Equal(t, ComputeLevel(oldXP) < ComputeLevel(oldXP+amount), leveledUp,
				"oldXP=%d amount=%d", oldXP, amount)
		}
	}
}

func TestXPNotice(t *testing.T) {
	n, ok := XPNotice(25, "Task completed", false, 1)
	require.True(t, ok)
	assert.Equal(t, NoticeXPGained, n.Kind)
	assert.Equal(t, "+25 XP: Task completed", n.Message)

	n, ok = XPNotice(25, "Task completed", true, 3)
	require.True(t, ok)
	assert.Equal(t, NoticeLevelUp, n.Kind)
	assert.Contains(t, n.Message, "level 3")

	_, ok = XPNotice(25, "", false, 1)
	assert.False(t, ok)
}
