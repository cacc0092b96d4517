package gamification

import (
	"strings"
	"time"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/stats"
)

// Candidate is an achievement the policy wants checked, optionally tied to a plant.
type Candidate struct {
	AchievementID string
	PlantID       *string
}

type threshold struct {
	count int
	id    string
}

var (
	plantThresholds = []threshold{
		{1, achievement.FirstPlant},
		{5, achievement.FivePlants},
		{10, achievement.TenPlants},
	}
	taskThresholds = []threshold{
		{1, achievement.FirstTask},
		{10, achievement.TenTasks},
		{50, achievement.FiftyTasks},
	}
)

const (
	earlyBirdBeforeHour = 8
	nightOwlFromHour    = 22
	growthTrackerCount  = 10
)

// requirementCounters maps achievements backed by a stats counter to that
// counter. Streak achievements compare against the longest streak.
var requirementCounters = map[string]func(stats.UserStats) int{
	achievement.FirstPlant:      plantsAdded,
	achievement.FivePlants:      plantsAdded,
	achievement.TenPlants:       plantsAdded,
	achievement.FirstTask:       tasksCompleted,
	achievement.TenTasks:        tasksCompleted,
	achievement.FiftyTasks:      tasksCompleted,
	achievement.SevenDayStreak:  longestStreak,
	achievement.ThirtyDayStreak: longestStreak,
	achievement.DiseaseDefender: func(s stats.UserStats) int { return s.DiseasesTreated },
	achievement.PerfectWeek:     func(s stats.UserStats) int { return s.PerfectWeeks },
}

func plantsAdded(s stats.UserStats) int    { return s.PlantsAdded }
func tasksCompleted(s stats.UserStats) int { return s.TasksCompleted }
func longestStreak(s stats.UserStats) int  { return max(s.LongestStreakDays, s.CurrentStreakDays) }

// RequirementMet reports whether st already satisfies def's requirement
// count. Achievements earned by a single event (completion hour, bloom,
// milestone count) cannot be proven from stats and never qualify.
func RequirementMet(def achievement.Definition, st stats.UserStats) bool {
	counter, ok := requirementCounters[def.ID]
	if !ok {
		return false
	}
	need := 1
	if def.RequirementCount != nil && *def.RequirementCount > need {
		need = *def.RequirementCount
	}
	return counter(st) >= need
}

func reached(count int, ts []threshold) []Candidate {
	var out []Candidate
	for _, t := range ts {
		if count >= t.count {
			out = append(out, Candidate{AchievementID: t.id})
		}
	}
	return out
}

// PlantAchievements lists the collection thresholds reached by plantsAdded.
// first_plant is tied to the plant that triggered the evaluation.
func PlantAchievements(plantsAdded int, plantID *string) []Candidate {
	out := reached(plantsAdded, plantThresholds)
	for i := range out {
		if out[i].AchievementID == achievement.FirstPlant {
			out[i].PlantID = plantID
		}
	}
	return out
}

func TaskAchievements(tasksCompleted int) []Candidate {
	return reached(tasksCompleted, taskThresholds)
}

func DiseaseAchievements(diseasesTreated int) []Candidate {
	if diseasesTreated >= 1 {
		return []Candidate{{AchievementID: achievement.DiseaseDefender}}
	}
	return nil
}

func PerfectWeekAchievements(perfectWeeks int) []Candidate {
	if perfectWeeks >= 1 {
		return []Candidate{{AchievementID: achievement.PerfectWeek}}
	}
	return nil
}

// CompletionTimeAchievements evaluates a single completion event by the hour
// of completedAt in loc.
func CompletionTimeAchievements(completedAt time.Time, loc *time.Location) []Candidate {
	hour := completedAt.In(loc).Hour()
	switch {
	case hour < earlyBirdBeforeHour:
		return []Candidate{{AchievementID: achievement.EarlyBird}}
	case hour >= nightOwlFromHour:
		return []Candidate{{AchievementID: achievement.NightOwl}}
	}
	return nil
}

func StreakAchievements(ids []string) []Candidate {
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, Candidate{AchievementID: id})
	}
	return out
}

// MilestoneAchievements evaluates a newly logged growth milestone.
// plantMilestones is the plant's milestone count including this one.
func MilestoneAchievements(milestoneType, title string, plantMilestones int, plantID *string) []Candidate {
	var out []Candidate

	t := strings.ToLower(title)
	if milestoneType == "flowering" || strings.Contains(t, "bloom") || strings.Contains(t, "flower") {
		out = append(out, Candidate{AchievementID: achievement.FirstBloom, PlantID: plantID})
	}
	if plantMilestones >= growthTrackerCount {
		out = append(out, Candidate{AchievementID: achievement.GrowthTracker, PlantID: plantID})
	}
	return out
}
