package gamification

import (
	"fmt"

	"floraGuardAPI/internal/stats"
)

// IncrementStat adds amount to one lifetime counter. No derived field changes.
func IncrementStat(s stats.UserStats, name stats.StatName, amount int) (stats.UserStats, error) {
	if !name.Valid() {
		return s, fmt.Errorf("%w: unknown stat %q", ErrInvalidInput, name)
	}
	if amount <= 0 {
		return s, fmt.Errorf("%w: stat increment must be positive, got %d", ErrInvalidInput, amount)
	}

	current, _ := s.Counter(name)
	return s.WithCounter(name, current+amount), nil
}
