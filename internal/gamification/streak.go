package gamification

import (
	"fmt"

	"cloud.google.com/go/civil"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/stats"
)

var streakMilestones = map[int]string{
	7:  achievement.SevenDayStreak,
	30: achievement.ThirtyDayStreak,
}

// UpdateStreak records qualifying activity on today. It returns the achievement
// ids whose streak milestone was reached by this call; the list is empty on
// every call that does not move the streak onto a milestone.
//
// A second call on the same day changes nothing. An activity date earlier than
// the last recorded one is also left alone so the streak never moves backwards.
func UpdateStreak(s stats.UserStats, today civil.Date) (stats.UserStats, []string, error) {
	if !today.IsValid() {
		return s, nil, fmt.Errorf("%w: invalid activity date %v", ErrInvalidInput, today)
	}

	if s.LastActivityDate != nil {
		last := *s.LastActivityDate
		if last == today || today.Before(last) {
			return s, nil, nil
		}
	}

	switch {
	case s.LastActivityDate != nil && s.LastActivityDate.AddDays(1) == today:
		s.CurrentStreakDays++
	default:
		s.CurrentStreakDays = 1
	}

	if s.CurrentStreakDays > s.LongestStreakDays {
		s.LongestStreakDays = s.CurrentStreakDays
	}
	day := today
	s.LastActivityDate = &day

	var reached []string
	if id, ok := streakMilestones[s.CurrentStreakDays]; ok {
		reached = append(reached, id)
	}
	return s, reached, nil
}
