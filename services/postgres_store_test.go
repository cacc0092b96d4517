package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/migrations"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/internal/stats"
)

// setupTestDB connects to TEST_DATABASE_URL and applies migrations. Tests
// using it are skipped when the variable is unset.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	//nolint:errcheck
	godotenv.Load("../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	_, err = migrations.Apply(ctx, pool)
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return pool
}

func testUserID(t *testing.T) string {
	t.Helper()
	id := "user_test_" + uuid.NewString()
	return id
}

func cleanupUser(t *testing.T, pool *pgxpool.Pool, userID string) {
	t.Cleanup(func() {
		ctx := context.Background()
		for _, q := range []string{
			"DELETE FROM plant_achievements WHERE user_id = $1",
			"DELETE FROM gamification_events WHERE user_id = $1",
			"DELETE FROM device_tokens WHERE user_id = $1",
			"DELETE FROM plant_milestone_counts WHERE user_id = $1",
			"DELETE FROM user_stats WHERE user_id = $1",
		} {
			if _, err := pool.Exec(ctx, q, userID); err != nil {
				t.Logf("Warning: failed to cleanup test data: %v", err)
			}
		}
	})
}

func TestPostgresStoreStatsRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	_, err := store.GetStats(ctx, userID)
	assert.ErrorIs(t, err, ErrStatsNotFound)

	day := civil.Date{Year: 2024, Month: 3, Day: 15}
	st := stats.New(userID)
	st.TotalXP = 130
	st.Level = 2
	st.CurrentStreakDays = 4
	st.LongestStreakDays = 9
	st.LastActivityDate = &day
	st.TasksCompleted = 7
	require.NoError(t, store.UpsertStats(ctx, st))

	got, err := store.GetStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 130, got.TotalXP)
	assert.Equal(t, 9, got.LongestStreakDays)
	require.NotNil(t, got.LastActivityDate)
	assert.Equal(t, day, *got.LastActivityDate)

	risk, err := store.ListStreaksAtRisk(ctx, day, 3)
	require.NoError(t, err)
	found := false
	for _, r := range risk {
		found = found || r.UserID == userID
	}
	assert.True(t, found)
}

func TestPostgresStoreClaimAndAchievementsAreUnique(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	claimed, err := store.ClaimEvent(ctx, userID, KindTaskCompleted, "42")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = store.ClaimEvent(ctx, userID, KindTaskCompleted, "42")
	require.NoError(t, err)
	assert.False(t, claimed)

	a := achievement.Achievement{
		ID:              uuid.New(),
		UserID:          userID,
		AchievementID:   achievement.FirstTask,
		AchievementType: "care",
		Title:           "First Steps",
		EarnedAt:        time.Now(),
	}
	ok, err := store.InsertAchievement(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	a.ID = uuid.New()
	ok, err = store.InsertAchievement(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStoreInTxRollsBackClaim(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	err := store.InTx(ctx, func(tx Store) error {
		if _, err := tx.ClaimEvent(ctx, userID, KindPlantAdded, "p1"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	claimed, err := store.ClaimEvent(ctx, userID, KindPlantAdded, "p1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestPostgresConcurrentActivitiesDoNotLoseUpdates(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	log := logger.NewNop()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	svc := NewGamificationService(GamificationDeps{
		Store:   store,
		Catalog: NewCatalogService(store, nil, time.Minute, log),
		Retrier: NewRetrier(4, DefaultBackoff(), log, nil),
		Logger:  log,
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RecordPlantAdded(ctx, userID, uuid.NewString())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := store.GetStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, st.PlantsAdded)
	// 5 plants at 30 XP plus first_plant and five_plants rewards
	defs, err := achievement.DefaultCatalog()
	require.NoError(t, err)
	first, _ := achievement.Find(defs, achievement.FirstPlant)
	five, _ := achievement.Find(defs, achievement.FivePlants)
	assert.Equal(t, 5*PlantXP+first.XPReward+five.XPReward, st.TotalXP)
	assert.Equal(t, 2, st.AchievementsEarned)
}

func TestPostgresDeviceTokens(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	tok := notification.DeviceToken{UserID: userID, Token: "tok-" + userID, Platform: "ios"}
	require.NoError(t, store.SaveDeviceToken(ctx, tok))
	require.NoError(t, store.SaveDeviceToken(ctx, tok))

	list, err := store.ListDeviceTokens(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ios", list[0].Platform)
}

func TestPostgresRecordPlantMilestone(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	userID := testUserID(t)
	cleanupUser(t, pool, userID)

	n, err := store.RecordPlantMilestone(ctx, userID, "plant-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.RecordPlantMilestone(ctx, userID, "plant-1", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	n, err = store.RecordPlantMilestone(ctx, userID, "plant-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
