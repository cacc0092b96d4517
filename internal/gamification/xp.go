package gamification

import (
	"fmt"

	"floraGuardAPI/internal/stats"
)

// AddXP adds amount to the user's total and recomputes the level.
func AddXP(s stats.UserStats, amount int) (stats.UserStats, bool, error) {
	if amount <= 0 {
		return s, false, fmt.Errorf("%w: xp amount must be positive, got %d", ErrInvalidInput, amount)
	}

	oldLevel := ComputeLevel(s.TotalXP)
	if s.Level > oldLevel {
		oldLevel = s.Level
	}

	s.TotalXP += amount
	s.Level = ComputeLevel(s.TotalXP)
	return s, s.Level > oldLevel, nil
}

type NoticeKind string

const (
	NoticeLevelUp  NoticeKind = "level_up"
	NoticeXPGained NoticeKind = "xp_gained"
)

type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// XPNotice decides what the user is told after an XP gain. A level-up always
// wins; otherwise a "+N XP" notice is only produced when a reason is given.
func XPNotice(amount int, reason string, leveledUp bool, level int) (Notice, bool) {
	if leveledUp {
		return Notice{
			Kind:    NoticeLevelUp,
			Title:   "Level Up!",
			Message: fmt.Sprintf("🎉 Level Up! You're now level %d!", level),
		}, true
	}
	if reason == "" {
		return Notice{}, false
	}
	return Notice{
		Kind:    NoticeXPGained,
		Title:   fmt.Sprintf("+%d XP", amount),
		Message: fmt.Sprintf("+%d XP: %s", amount, reason),
	}, true
}
