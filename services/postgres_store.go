package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/stats"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: tx})
	})
}

const statsColumns = `user_id, total_xp, level, current_streak_days, longest_streak_days,
	last_activity_date, tasks_completed, plants_added, achievements_earned,
	perfect_weeks, diseases_treated, created_at, updated_at`

func scanStats(row pgx.Row) (*stats.UserStats, error) {
	st := &stats.UserStats{}
	var last pgtype.Date
	err := row.Scan(
		&st.UserID,
		&st.TotalXP,
		&st.Level,
		&st.CurrentStreakDays,
		&st.LongestStreakDays,
		&last,
		&st.TasksCompleted,
		&st.PlantsAdded,
		&st.AchievementsEarned,
		&st.PerfectWeeks,
		&st.DiseasesTreated,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		d := civil.DateOf(last.Time)
		st.LastActivityDate = &d
	}
	return st, nil
}

func (s *PostgresStore) LockStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	_, err := s.db.Exec(ctx, `
	INSERT INTO user_stats (user_id, level, created_at, updated_at)
	VALUES ($1, 1, NOW(), NOW())
	ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats: %w", err)
	}

	st, err := scanStats(s.db.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock stats: %w", err)
	}
	return st, nil
}

func toPgDate(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func (s *PostgresStore) GetStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	st, err := scanStats(s.db.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM user_stats WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpsertStats(ctx context.Context, st stats.UserStats) error {
	query := `
	INSERT INTO user_stats (user_id, total_xp, level, current_streak_days, longest_streak_days,
		last_activity_date, tasks_completed, plants_added, achievements_earned,
		perfect_weeks, diseases_treated, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		total_xp = EXCLUDED.total_xp,
		level = EXCLUDED.level,
		current_streak_days = EXCLUDED.current_streak_days,
		longest_streak_days = EXCLUDED.longest_streak_days,
		last_activity_date = EXCLUDED.last_activity_date,
		tasks_completed = EXCLUDED.tasks_completed,
		plants_added = EXCLUDED.plants_added,
		achievements_earned = EXCLUDED.achievements_earned,
		perfect_weeks = EXCLUDED.perfect_weeks,
		diseases_treated = EXCLUDED.diseases_treated,
		updated_at = NOW()
	`

	_, err := s.db.Exec(ctx, query,
		st.UserID,
		st.TotalXP,
		st.Level,
		st.CurrentStreakDays,
		st.LongestStreakDays,
		toPgDate(st.LastActivityDate),
		st.TasksCompleted,
		st.PlantsAdded,
		st.AchievementsEarned,
		st.PerfectWeeks,
		st.DiseasesTreated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAchievements(ctx context.Context, userID string) ([]achievement.Achievement, error) {
	query := `
	SELECT id, user_id, achievement_id, achievement_type, title, description, icon,
		plant_id, metadata, earned_at
	FROM plant_achievements
	WHERE user_id = $1
	ORDER BY earned_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Achievement
	for rows.Next() {
		var a achievement.Achievement
		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.AchievementID,
			&a.AchievementType,
			&a.Title,
			&a.Description,
			&a.Icon,
			&a.PlantID,
			&a.Metadata,
			&a.EarnedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate achievements: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertAchievement(ctx context.Context, a achievement.Achievement) (bool, error) {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	tag, err := s.db.Exec(ctx, `
	INSERT INTO plant_achievements (id, user_id, achievement_id, achievement_type, title,
		description, icon, plant_id, metadata, earned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (user_id, achievement_id) DO NOTHING
	`,
		a.ID,
		a.UserID,
		a.AchievementID,
		a.AchievementType,
		a.Title,
		a.Description,
		a.Icon,
		a.PlantID,
		metadata,
		a.EarnedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAchievementDefinitions(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := s.db.Query(ctx, `
	SELECT id, title, description, icon, color, achievement_type, xp_reward, requirement_count, created_at
	FROM achievement_definitions
	ORDER BY xp_reward ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievement definitions: %w", err)
	}
	defer rows.Close()

	var defs []achievement.Definition
	for rows.Next() {
		var d achievement.Definition
		if err := rows.Scan(
			&d.ID,
			&d.Title,
			&d.Description,
			&d.Icon,
			&d.Color,
			&d.AchievementType,
			&d.XPReward,
			&d.RequirementCount,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan achievement definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *PostgresStore) UpsertAchievementDefinitions(ctx context.Context, defs []achievement.Definition) error {
	batch := &pgx.Batch{}
	for _, d := range defs {
		batch.Queue(`
		INSERT INTO achievement_definitions (id, title, description, icon, color, achievement_type, xp_reward, requirement_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			color = EXCLUDED.color,
			achievement_type = EXCLUDED.achievement_type,
			xp_reward = EXCLUDED.xp_reward,
			requirement_count = EXCLUDED.requirement_count
		`, d.ID, d.Title, d.Description, d.Icon, d.Color, d.AchievementType, d.XPReward, d.RequirementCount)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range defs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert achievement definition: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ClaimEvent(ctx context.Context, userID, kind, refID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
	INSERT INTO gamification_events (user_id, kind, ref_id)
	VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING
	`, userID, kind, refID)
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RecordPlantMilestone(ctx context.Context, userID, plantID string, reported int) (int, error) {
	var total int
	err := s.db.QueryRow(ctx, `
	INSERT INTO plant_milestone_counts (user_id, plant_id, milestones, updated_at)
	VALUES ($1, $2, GREATEST(1, $3), NOW())
	ON CONFLICT (user_id, plant_id) DO UPDATE SET
		milestones = GREATEST(plant_milestone_counts.milestones + 1, EXCLUDED.milestones),
		updated_at = NOW()
	RETURNING milestones
	`, userID, plantID, reported).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count plant milestone: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) ListTopStats(ctx context.Context, limit int) ([]stats.UserStats, error) {
	return s.queryStats(ctx, `
	SELECT `+statsColumns+`
	FROM user_stats
	ORDER BY total_xp DESC, longest_streak_days DESC, user_id ASC
	LIMIT $1
	`, limit)
}

func (s *PostgresStore) CountStats(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountAhead(ctx context.Context, totalXP int) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_stats WHERE total_xp > $1`, totalXP).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListStreaksAtRisk(ctx context.Context, day civil.Date, minStreak int) ([]stats.UserStats, error) {
	return s.queryStats(ctx, `
	SELECT `+statsColumns+`
	FROM user_stats
	WHERE last_activity_date = $1 AND current_streak_days >= $2
	ORDER BY current_streak_days DESC
	`, toPgDate(&day), minStreak)
}

func (s *PostgresStore) queryStats(ctx context.Context, query string, args ...any) ([]stats.UserStats, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var out []stats.UserStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveDeviceToken(ctx context.Context, t notification.DeviceToken) error {
	_, err := s.db.Exec(ctx, `
	INSERT INTO device_tokens (user_id, token, platform)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform, updated_at = NOW()
	`, t.UserID, t.Token, t.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
	SELECT user_id, token, platform, created_at FROM device_tokens WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
