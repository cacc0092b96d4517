package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/stats"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func testDefinitions() []achievement.Definition {
	return []achievement.Definition{
		{ID: achievement.FirstTask, Title: "First Steps", AchievementType: "care", Icon: "CheckCircle", XPReward: 25},
		{ID: achievement.TenTasks, Title: "Dedicated Gardener", AchievementType: "care", XPReward: 100},
		{ID: achievement.EarlyBird, Title: "Early Bird", AchievementType: "timing", XPReward: 0},
	}
}

func TestCheckAndAwardAchievementAwardsOnce(t *testing.T) {
	e := NewEngine(func() time.Time { return fixedNow })
	s := stats.New("user_1")
	var existing []achievement.Achievement

	first := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: achievement.FirstTask,
		Existing:      existing,
		Definitions:   testDefinitions(),
		Stats:         s,
	})
	require.True(t, first.Awarded)
	require.NotNil(t, first.Achievement)
	assert.Equal(t, 25, first.XPDelta)
	assert.Equal(t, 25, first.Stats.TotalXP)
	assert.Equal(t, 1, first.Stats.AchievementsEarned)
	assert.Equal(t, fixedNow, first.Achievement.EarnedAt)
	assert.Equal(t, "care", first.Achievement.AchievementType)
	assert.Equal(t, achievement.FirstTask, first.Achievement.AchievementID)

	existing = append(existing, *first.Achievement)

	second := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: achievement.FirstTask,
		Existing:      existing,
		Definitions:   testDefinitions(),
		Stats:         first.Stats,
	})
	assert.False(t, second.Awarded)
	assert.Nil(t, second.Achievement)
	assert.Equal(t, 0, second.XPDelta)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestCheckAndAwardAchievementMatchesByType(t *testing.T) {
	e := NewEngine(nil)
	existing := []achievement.Achievement{{AchievementType: achievement.FirstTask}}

	res := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: achievement.FirstTask,
		Existing:      existing,
		Definitions:   testDefinitions(),
		Stats:         stats.New("user_1"),
	})
	assert.False(t, res.Awarded)
}

func TestCheckAndAwardAchievementUnknownIsNoop(t *testing.T) {
	e := NewEngine(nil)
	s := stats.New("user_1")
	s.TotalXP = 120
	s.Level = 2

	res := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: "does_not_exist",
		Definitions:   testDefinitions(),
		Stats:         s,
	})
	assert.False(t, res.Awarded)
	assert.Equal(t, s, res.Stats)
}

func TestCheckAndAwardAchievementZeroReward(t *testing.T) {
	e := NewEngine(nil)
	s := stats.New("user_1")

	res := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: achievement.EarlyBird,
		Definitions:   testDefinitions(),
		Stats:         s,
	})
	require.True(t, res.Awarded)
	assert.Equal(t, 0, res.Stats.TotalXP)
	assert.Equal(t, 1, res.Stats.AchievementsEarned)
}

func TestCheckAndAwardAchievementLevelsUp(t *testing.T) {
	e := NewEngine(nil)
	s := stats.New("user_1")
	s.TotalXP = 90

	res := e.CheckAndAwardAchievement(AwardRequest{
		UserID:        "user_1",
		AchievementID: achievement.FirstTask,
		Definitions:   testDefinitions(),
		Stats:         s,
	})
	require.True(t, res.Awarded)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Stats.Level)
}

func TestFirstTaskScenario(t *testing.T) {
	e := NewEngine(func() time.Time { return fixedNow })
	s := stats.New("user_1")

	s, err := IncrementStat(s, stats.TasksCompleted, 1)
	require.NoError(t, err)

	var existing []achievement.Achievement
	for _, c := range TaskAchievements(s.TasksCompleted) {
		res := e.CheckAndAwardAchievement(AwardRequest{
			UserID:        "user_1",
			AchievementID: c.AchievementID,
			Existing:      existing,
			Definitions:   testDefinitions(),
			Stats:         s,
		})
		if res.Awarded {
			existing = append(existing, *res.Achievement)
			s = res.Stats
		}
	}

	require.Len(t, existing, 1)
	assert.Equal(t, achievement.FirstTask, existing[0].AchievementID)
	assert.Equal(t, 1, s.TasksCompleted)
	assert.Equal(t, 25, s.TotalXP)
	assert.Equal(t, ComputeLevel(25), s.Level)
	assert.Equal(t, 1, s.AchievementsEarned)
}
