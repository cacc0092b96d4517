package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Change-feed channels raised by the triggers in migration 004.
const (
	ChannelTaskCompleted = "care_task_completed"
	ChannelPlantAdded    = "plant_added"
	ChannelMilestone     = "milestone_added"
)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_stats (
    user_id TEXT PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    current_streak_days INTEGER NOT NULL DEFAULT 0,
    longest_streak_days INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    plants_added INTEGER NOT NULL DEFAULT 0,
    achievements_earned INTEGER NOT NULL DEFAULT 0,
    perfect_weeks INTEGER NOT NULL DEFAULT 0,
    diseases_treated INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_streak CHECK (longest_streak_days >= current_streak_days)
);

CREATE INDEX IF NOT EXISTS idx_user_stats_total_xp ON user_stats(total_xp DESC);
CREATE INDEX IF NOT EXISTS idx_user_stats_last_activity ON user_stats(last_activity_date);
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT 'Trophy',
    color TEXT NOT NULL DEFAULT '',
    achievement_type TEXT NOT NULL,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    requirement_count INTEGER,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp_reward CHECK (xp_reward >= 0)
);

CREATE TABLE IF NOT EXISTS plant_achievements (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    achievement_id TEXT NOT NULL,
    achievement_type TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT 'Trophy',
    plant_id TEXT,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uniq_user_achievement UNIQUE (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_plant_achievements_user_earned ON plant_achievements(user_id, earned_at DESC);
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS gamification_events (
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    ref_id TEXT NOT NULL,
    processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, kind, ref_id)
);

CREATE TABLE IF NOT EXISTS device_tokens (
    user_id TEXT NOT NULL,
    token TEXT NOT NULL,
    platform TEXT NOT NULL DEFAULT 'android',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, token),
    CONSTRAINT valid_platform CHECK (platform IN ('ios', 'android', 'web'))
);
`

// The plant tables belong to the wider application. Triggers are only
// installed when those tables exist.
const migration004Up = `
CREATE OR REPLACE FUNCTION notify_care_task_completed() RETURNS trigger AS $$
BEGIN
    IF NEW.status = 'completed' AND (TG_OP = 'INSERT' OR OLD.status IS DISTINCT FROM 'completed') THEN
        PERFORM pg_notify('care_task_completed', json_build_object(
            'user_id', NEW.user_id,
            'task_id', NEW.id,
            'plant_id', NEW.plant_id,
            'completed_at', COALESCE(NEW.completed_at, NOW())
        )::text);
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION notify_plant_added() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('plant_added', json_build_object(
        'user_id', NEW.user_id,
        'plant_id', NEW.id
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION notify_milestone_added() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('milestone_added', json_build_object(
        'user_id', NEW.user_id,
        'milestone_id', NEW.id,
        'plant_id', NEW.plant_id,
        'milestone_type', NEW.milestone_type,
        'title', NEW.title,
        'plant_milestone_count', (SELECT COUNT(*) FROM growth_milestones WHERE plant_id = NEW.plant_id)
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DO $$
BEGIN
    IF to_regclass('public.care_tasks') IS NOT NULL THEN
        DROP TRIGGER IF EXISTS trg_care_task_completed ON care_tasks;
        CREATE TRIGGER trg_care_task_completed
            AFTER INSERT OR UPDATE OF status ON care_tasks
            FOR EACH ROW EXECUTE FUNCTION notify_care_task_completed();
    END IF;

    IF to_regclass('public.user_plants') IS NOT NULL THEN
        DROP TRIGGER IF EXISTS trg_plant_added ON user_plants;
        CREATE TRIGGER trg_plant_added
            AFTER INSERT ON user_plants
            FOR EACH ROW EXECUTE FUNCTION notify_plant_added();
    END IF;

    IF to_regclass('public.growth_milestones') IS NOT NULL THEN
        DROP TRIGGER IF EXISTS trg_milestone_added ON growth_milestones;
        CREATE TRIGGER trg_milestone_added
            AFTER INSERT ON growth_milestones
            FOR EACH ROW EXECUTE FUNCTION notify_milestone_added();
    END IF;
END;
$$;
`

const migration005Up = `
CREATE TABLE IF NOT EXISTS plant_milestone_counts (
    user_id TEXT NOT NULL,
    plant_id TEXT NOT NULL,
    milestones INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, plant_id),
    CONSTRAINT valid_milestones CHECK (milestones >= 0)
);
`

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// All returns the migrations in the order they must be applied.
func All() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_stats", SQL: migration001Up},
		{Version: 2, Name: "create_achievements", SQL: migration002Up},
		{Version: 3, Name: "create_events_and_devices", SQL: migration003Up},
		{Version: 4, Name: "create_change_feed_triggers", SQL: migration004Up},
		{Version: 5, Name: "create_plant_milestone_counts", SQL: migration005Up},
	}
}

// Apply runs every migration not yet recorded in schema_migrations, each in
// its own transaction. It returns the versions it applied.
func Apply(ctx context.Context, pool *pgxpool.Pool) ([]int, error) {
	if _, err := pool.Exec(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []int
	for _, m := range All() {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}
