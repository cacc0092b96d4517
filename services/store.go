package services

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/stats"
)

var (
	ErrStatsNotFound = errors.New("stats not found")
	ErrPersistence   = errors.New("persistence failed")
)

// Store is the persistence collaborator of the gamification service.
type Store interface {
	GetStats(ctx context.Context, userID string) (*stats.UserStats, error)
	UpsertStats(ctx context.Context, s stats.UserStats) error
	// LockStats creates the user's zero row when missing and returns the row
	// locked for the rest of the transaction.
	LockStats(ctx context.Context, userID string) (*stats.UserStats, error)

	// ListAchievements returns the user's earned achievements, newest first.
	ListAchievements(ctx context.Context, userID string) ([]achievement.Achievement, error)
	// InsertAchievement reports false when the user already holds the
	// achievement id. That is not an error.
	InsertAchievement(ctx context.Context, a achievement.Achievement) (bool, error)

	ListAchievementDefinitions(ctx context.Context) ([]achievement.Definition, error)
	UpsertAchievementDefinitions(ctx context.Context, defs []achievement.Definition) error

	// ClaimEvent records (userID, kind, refID) as processed. It reports false
	// when the key was already claimed.
	ClaimEvent(ctx context.Context, userID, kind, refID string) (bool, error)

	// RecordPlantMilestone counts one more milestone for the plant and returns
	// its total. reported raises the total to a count known from the plant
	// tables.
	RecordPlantMilestone(ctx context.Context, userID, plantID string, reported int) (int, error)

	ListTopStats(ctx context.Context, limit int) ([]stats.UserStats, error)
	CountStats(ctx context.Context) (int, error)
	// CountAhead counts users with strictly more XP than totalXP.
	CountAhead(ctx context.Context, totalXP int) (int, error)
	// ListStreaksAtRisk returns users whose last activity was on day and whose
	// current streak is at least minStreak.
	ListStreaksAtRisk(ctx context.Context, day civil.Date, minStreak int) ([]stats.UserStats, error)

	SaveDeviceToken(ctx context.Context, t notification.DeviceToken) error
	ListDeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)

	// InTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
