package achievement

import (
	"time"

	"github.com/google/uuid"
)

const (
	FirstPlant      = "first_plant"
	FivePlants      = "five_plants"
	TenPlants       = "ten_plants"
	FirstTask       = "first_task"
	TenTasks        = "ten_tasks"
	FiftyTasks      = "fifty_tasks"
	SevenDayStreak  = "seven_day_streak"
	ThirtyDayStreak = "thirty_day_streak"
	DiseaseDefender = "disease_defender"
	EarlyBird       = "early_bird"
	NightOwl        = "night_owl"
	FirstBloom      = "first_bloom"
	GrowthTracker   = "growth_tracker"
	PerfectWeek     = "perfect_week"
)

// Definition is a catalog entry. Definitions are reference data managed
// outside the service and never change at runtime.
type Definition struct {
	ID               string    `json:"id" db:"id" yaml:"id"`
	Title            string    `json:"title" db:"title" yaml:"title"`
	Description      string    `json:"description" db:"description" yaml:"description"`
	Icon             string    `json:"icon" db:"icon" yaml:"icon"`
	Color            string    `json:"color" db:"color" yaml:"color"`
	AchievementType  string    `json:"achievement_type" db:"achievement_type" yaml:"achievement_type"`
	XPReward         int       `json:"xp_reward" db:"xp_reward" yaml:"xp_reward"`
	RequirementCount *int      `json:"requirement_count,omitempty" db:"requirement_count" yaml:"requirement_count,omitempty"`
	CreatedAt        time.Time `json:"created_at" db:"created_at" yaml:"-"`
}

// Achievement is an earned record. At most one exists per (UserID, AchievementID).
type Achievement struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	AchievementID   string         `json:"achievement_id" db:"achievement_id"`
	AchievementType string         `json:"achievement_type" db:"achievement_type"`
	Title           string         `json:"title" db:"title"`
	Description     string         `json:"description" db:"description"`
	Icon            string         `json:"icon" db:"icon"`
	PlantID         *string        `json:"plant_id,omitempty" db:"plant_id"`
	Metadata        map[string]any `json:"metadata" db:"metadata"`
	EarnedAt        time.Time      `json:"earned_at" db:"earned_at"`
}

type DefinitionWithStatus struct {
	Definition
	Unlocked bool       `json:"unlocked"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}

// Find returns the definition with the given id.
func Find(defs []Definition, id string) (Definition, bool) {
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// WithStatus joins the catalog with a user's earned records, keeping catalog order.
func WithStatus(defs []Definition, earned []Achievement) []DefinitionWithStatus {
	byID := make(map[string]Achievement, len(earned))
	for _, a := range earned {
		byID[a.AchievementID] = a
	}

	out := make([]DefinitionWithStatus, 0, len(defs))
	for _, d := range defs {
		item := DefinitionWithStatus{Definition: d}
		if a, ok := byID[d.ID]; ok {
			earnedAt := a.EarnedAt
			item.Unlocked = true
			item.EarnedAt = &earnedAt
		}
		out = append(out, item)
	}
	return out
}
