package gamification

import (
	"math"

	"floraGuardAPI/internal/stats"
)

const xpPerLevelUnit = 100

// ComputeLevel returns floor(sqrt(xp/100)) + 1. Negative input is treated as zero.
func ComputeLevel(xp int) int {
	if xp <= 0 {
		return 1
	}

	n := int(math.Sqrt(float64(xp) / xpPerLevelUnit))
	// correct float rounding at perfect squares
	for n > 0 && n*n*xpPerLevelUnit > xp {
		n--
	}
	for (n+1)*(n+1)*xpPerLevelUnit <= xp {
		n++
	}
	return n + 1
}

// XPForLevel is the minimum total XP at which a user is at level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return (level - 1) * (level - 1) * xpPerLevelUnit
}

// XPForNextLevel is the total XP needed to move past level.
func XPForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * level * xpPerLevelUnit
}

func Progress(totalXP int) stats.LevelProgress {
	level := ComputeLevel(totalXP)
	start := XPForLevel(level)
	next := XPForNextLevel(level)

	p := stats.LevelProgress{
		Level:            level,
		TotalXP:          totalXP,
		LevelStartXP:     start,
		NextLevelXP:      next,
		XPIntoLevel:      totalXP - start,
		XPNeededForLevel: next - start,
	}
	if p.XPIntoLevel < 0 {
		p.XPIntoLevel = 0
	}
	p.Fraction = float64(p.XPIntoLevel) / float64(p.XPNeededForLevel)
	return p
}
