package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/stats"
)

func ids(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.AchievementID)
	}
	return out
}

func TestPlantAchievements(t *testing.T) {
	plant := "plant-1"

	assert.Empty(t, PlantAchievements(0, &plant))

	got := PlantAchievements(1, &plant)
	assert.Equal(t, []string{achievement.FirstPlant}, ids(got))
	assert.Equal(t, &plant, got[0].PlantID)

	assert.Equal(t, []string{achievement.FirstPlant, achievement.FivePlants}, ids(PlantAchievements(5, nil)))
	assert.Equal(t,
		[]string{achievement.FirstPlant, achievement.FivePlants, achievement.TenPlants},
		ids(PlantAchievements(12, nil)))
}

func TestTaskAchievements(t *testing.T) {
	assert.Equal(t, []string{achievement.FirstTask}, ids(TaskAchievements(1)))
	assert.Equal(t, []string{achievement.FirstTask}, ids(TaskAchievements(9)))
	assert.Equal(t, []string{achievement.FirstTask, achievement.TenTasks}, ids(TaskAchievements(10)))
	assert.Len(t, TaskAchievements(50), 3)
}

func TestDiseaseAndPerfectWeekAchievements(t *testing.T) {
	assert.Empty(t, DiseaseAchievements(0))
	assert.Equal(t, []string{achievement.DiseaseDefender}, ids(DiseaseAchievements(1)))
	assert.Empty(t, PerfectWeekAchievements(0))
	assert.Equal(t, []string{achievement.PerfectWeek}, ids(PerfectWeekAchievements(2)))
}

func TestCompletionTimeAchievements(t *testing.T) {
	at := func(hour int) time.Time { return time.Date(2024, 3, 15, hour, 15, 0, 0, time.UTC) }

	assert.Equal(t, []string{achievement.EarlyBird}, ids(CompletionTimeAchievements(at(6), time.UTC)))
	assert.Equal(t, []string{achievement.EarlyBird}, ids(CompletionTimeAchievements(at(0), time.UTC)))
	assert.Empty(t, CompletionTimeAchievements(at(8), time.UTC))
	assert.Empty(t, CompletionTimeAchievements(at(21), time.UTC))
	assert.Equal(t, []string{achievement.NightOwl}, ids(CompletionTimeAchievements(at(22), time.UTC)))

	// 23:30 UTC is 08:30 the next morning in Tokyo
	tokyo := time.FixedZone("JST", 9*60*60)
	late := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	assert.Empty(t, CompletionTimeAchievements(late, tokyo))
}

func TestMilestoneAchievements(t *testing.T) {
	plant := "plant-9"

	got := MilestoneAchievements("flowering", "First flower", 1, &plant)
	assert.Equal(t, []string{achievement.FirstBloom}, ids(got))
	assert.Equal(t, &plant, got[0].PlantID)

	assert.Equal(t, []string{achievement.FirstBloom}, ids(MilestoneAchievements("height", "Big BLOOM today", 2, &plant)))
	assert.Empty(t, MilestoneAchievements("height", "Grew 3cm", 9, &plant))
	assert.Equal(t, []string{achievement.GrowthTracker}, ids(MilestoneAchievements("height", "Grew 3cm", 10, &plant)))
}

func TestStreakAchievements(t *testing.T) {
	assert.Empty(t, StreakAchievements(nil))
	assert.Equal(t, []string{achievement.SevenDayStreak}, ids(StreakAchievements([]string{achievement.SevenDayStreak})))
}

func TestRequirementMet(t *testing.T) {
	def := func(id string, count int) achievement.Definition {
		return achievement.Definition{ID: id, RequirementCount: &count}
	}
	fresh := stats.New("user_1")

	for _, d := range []achievement.Definition{
		def(achievement.FiftyTasks, 50),
		def(achievement.TenPlants, 10),
		def(achievement.ThirtyDayStreak, 30),
		def(achievement.DiseaseDefender, 1),
	} {
		assert.False(t, RequirementMet(d, fresh), d.ID)
	}

	st := fresh
	st.TasksCompleted = 50
	st.PlantsAdded = 9
	st.LongestStreakDays = 30
	assert.True(t, RequirementMet(def(achievement.FiftyTasks, 50), st))
	assert.False(t, RequirementMet(def(achievement.TenPlants, 10), st))
	assert.True(t, RequirementMet(def(achievement.ThirtyDayStreak, 30), st))

	// without a stored count the achievement still needs one occurrence
	assert.False(t, RequirementMet(achievement.Definition{ID: achievement.PerfectWeek}, fresh))

	// event-only achievements are never granted from stats alone
	for _, id := range []string{achievement.EarlyBird, achievement.NightOwl, achievement.FirstBloom, achievement.GrowthTracker} {
		assert.False(t, RequirementMet(def(id, 1), st), id)
	}
}
