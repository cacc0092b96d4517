package workers

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"

	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/internal/stats"
)

const (
	DefaultStreakReminderSpec = "0 18 * * *"
	minStreakWorthReminding   = 3
)

type StreakSource interface {
	ListStreaksAtRisk(ctx context.Context, day civil.Date, minStreak int) ([]stats.UserStats, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, n *notification.Notification)
}

// StreakReminder warns users whose streak ends at midnight unless they
// complete a task today.
type StreakReminder struct {
	source   StreakSource
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	log      *logger.Logger
	cron     *cron.Cron
}

func NewStreakReminder(source StreakSource, notifier Notifier, loc *time.Location, log *logger.Logger) *StreakReminder {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakReminder{
		source:   source,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		log:      log.With("worker", "StreakReminder"),
		cron:     cron.New(cron.WithLocation(loc)),
	}
}

// Start schedules the reminder and runs the cron scheduler in the background.
func (r *StreakReminder) Start(spec string) error {
	if spec == "" {
		spec = DefaultStreakReminderSpec
	}
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error("streak reminder run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid streak reminder schedule %q: %w", spec, err)
	}
	r.cron.Start()
	r.log.Info("streak reminder scheduled", "spec", spec, "location", r.loc.String())
	return nil
}

// Stop waits for a running job to finish.
func (r *StreakReminder) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce notifies every user whose last activity was yesterday and returns
// how many were reminded.
func (r *StreakReminder) RunOnce(ctx context.Context) (int, error) {
	yesterday := civil.DateOf(r.now().In(r.loc)).AddDays(-1)

	users, err := r.source.ListStreaksAtRisk(ctx, yesterday, minStreakWorthReminding)
	if err != nil {
		return 0, fmt.Errorf("failed to list streaks at risk: %w", err)
	}

	for _, u := range users {
		n := notification.New(u.UserID, notification.NotificationStreakRisk,
			"🔥 Keep your streak alive!",
			fmt.Sprintf("Your %d-day care streak ends tonight. Complete a task to keep it going.", u.CurrentStreakDays))
		n.Icon = "Flame"
		n.Data = map[string]any{"current_streak_days": u.CurrentStreakDays}
		r.notifier.Dispatch(ctx, n)
	}

	r.log.Info("streak reminders sent", "count", len(users), "day", yesterday.String())
	return len(users), nil
}
