package gamification

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/stats"
)

type Engine struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now, newID: uuid.New}
}

type AwardRequest struct {
	UserID        string
	AchievementID string
	PlantID       *string
	Existing      []achievement.Achievement
	Definitions   []achievement.Definition
	Stats         stats.UserStats
}

type AwardResult struct {
	Awarded     bool
	Achievement *achievement.Achievement
	XPDelta     int
	LeveledUp   bool
	Stats       stats.UserStats
	Definition  *achievement.Definition
}

// HasEarned reports whether existing already holds achievementID, matched by
// definition id or by achievement type.
func HasEarned(existing []achievement.Achievement, achievementID string) bool {
	for _, a := range existing {
		if a.AchievementID == achievementID || a.AchievementType == achievementID {
			return true
		}
	}
	return false
}

// CheckAndAwardAchievement awards achievementID at most once per user. An
// already earned id and an id missing from the catalog both return
// Awarded=false with the stats untouched.
func (e *Engine) CheckAndAwardAchievement(req AwardRequest) AwardResult {
	res := AwardResult{Stats: req.Stats}

	if HasEarned(req.Existing, req.AchievementID) {
		return res
	}

	def, ok := achievement.Find(req.Definitions, req.AchievementID)
	if !ok {
		return res
	}

	next := req.Stats
	if def.XPReward > 0 {
		var err error
		next, res.LeveledUp, err = AddXP(next, def.XPReward)
		if err != nil {
			return AwardResult{Stats: req.Stats}
		}
	}
	next, err := IncrementStat(next, stats.AchievementsEarned, 1)
	if err != nil {
		return AwardResult{Stats: req.Stats}
	}

	rec := &achievement.Achievement{
		ID:              e.newID(),
		UserID:          req.UserID,
		AchievementID:   def.ID,
		AchievementType: def.AchievementType,
		Title:           def.Title,
		Description:     def.Description,
		Icon:            def.Icon,
		PlantID:         req.PlantID,
		Metadata:        map[string]any{},
		EarnedAt:        e.now(),
	}

	res.Awarded = true
	res.Achievement = rec
	res.XPDelta = def.XPReward
	res.Stats = next
	res.Definition = &def
	return res
}

// Today is the calendar day of the engine clock in loc.
func (e *Engine) Today(loc *time.Location) civil.Date {
	return civil.DateOf(e.now().In(loc))
}

func (e *Engine) Now() time.Time {
	return e.now()
}
