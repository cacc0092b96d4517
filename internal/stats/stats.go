package stats

import (
	"time"

	"cloud.google.com/go/civil"
)

type StatName string

const (
	TasksCompleted     StatName = "tasks_completed"
	PlantsAdded        StatName = "plants_added"
	AchievementsEarned StatName = "achievements_earned"
	PerfectWeeks       StatName = "perfect_weeks"
	DiseasesTreated    StatName = "diseases_treated"
)

// Valid reports whether n names one of the lifetime counters.
func (n StatName) Valid() bool {
	switch n {
	case TasksCompleted, PlantsAdded, AchievementsEarned, PerfectWeeks, DiseasesTreated:
		return true
	}
	return false
}

type UserStats struct {
	UserID             string      `json:"user_id" db:"user_id"`
	TotalXP            int         `json:"total_xp" db:"total_xp"`
	Level              int         `json:"level" db:"level"`
	CurrentStreakDays  int         `json:"current_streak_days" db:"current_streak_days"`
	LongestStreakDays  int         `json:"longest_streak_days" db:"longest_streak_days"`
	LastActivityDate   *civil.Date `json:"last_activity_date" db:"last_activity_date"`
	TasksCompleted     int         `json:"tasks_completed" db:"tasks_completed"`
	PlantsAdded        int         `json:"plants_added" db:"plants_added"`
	AchievementsEarned int         `json:"achievements_earned" db:"achievements_earned"`
	PerfectWeeks       int         `json:"perfect_weeks" db:"perfect_weeks"`
	DiseasesTreated    int         `json:"diseases_treated" db:"diseases_treated"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// New returns the row a user starts with on first access.
func New(userID string) UserStats {
	return UserStats{
		UserID: userID,
		Level:  1,
	}
}

// Counter returns the value of a lifetime counter, or false for an unknown name.
func (s UserStats) Counter(name StatName) (int, bool) {
	switch name {
	case TasksCompleted:
		return s.TasksCompleted, true
	case PlantsAdded:
		return s.PlantsAdded, true
	case AchievementsEarned:
		return s.AchievementsEarned, true
	case PerfectWeeks:
		return s.PerfectWeeks, true
	case DiseasesTreated:
		return s.DiseasesTreated, true
	}
	return 0, false
}

// WithCounter returns a copy of s with the named counter set to value.
func (s UserStats) WithCounter(name StatName, value int) UserStats {
	switch name {
	case TasksCompleted:
		s.TasksCompleted = value
	case PlantsAdded:
		s.PlantsAdded = value
	case AchievementsEarned:
		s.AchievementsEarned = value
	case PerfectWeeks:
		s.PerfectWeeks = value
	case DiseasesTreated:
		s.DiseasesTreated = value
	}
	return s
}

type LevelProgress struct {
	Level            int     `json:"level"`
	TotalXP          int     `json:"total_xp"`
	LevelStartXP     int     `json:"level_start_xp"`
	NextLevelXP      int     `json:"next_level_xp"`
	XPIntoLevel      int     `json:"xp_into_level"`
	XPNeededForLevel int     `json:"xp_needed_for_level"`
	Fraction         float64 `json:"fraction"`
}

type StatsResponse struct {
	Stats    UserStats     `json:"stats"`
	Progress LevelProgress `json:"progress"`
}
