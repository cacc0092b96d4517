package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/internal/leaderboard"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/observability"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/internal/stats"
)

// Activity kinds. Together with a reference id they identify one
// qualifying event, whichever observer reports it.
const (
	KindTaskCompleted  = "task_completed"
	KindPlantAdded     = "plant_added"
	KindMilestone      = "milestone_added"
	KindDiseaseTreated = "disease_treated"
	KindPerfectWeek    = "perfect_week"
	KindManualCheck    = "achievement_check"
)

const (
	TaskXP      = 25
	PlantXP     = 30
	MilestoneXP = 20
)

// maxCompletionSkew bounds how far a reported completion may run ahead of
// the server clock.
const maxCompletionSkew = 5 * time.Minute

const persistWarning = "progress could not be saved yet and will not be visible after reload"

type Notifier interface {
	Dispatch(ctx context.Context, n *notification.Notification)
}

type GamificationDeps struct {
	Store    Store
	Catalog  *CatalogService
	Engine   *gamification.Engine
	Notifier Notifier
	Retrier  *Retrier
	Metrics  *observability.Metrics
	Location *time.Location
	Logger   *logger.Logger
}

type GamificationService struct {
	store    Store
	catalog  *CatalogService
	engine   *gamification.Engine
	notifier Notifier
	retrier  *Retrier
	metrics  *observability.Metrics
	loc      *time.Location
	log      *logger.Logger
}

func NewGamificationService(d GamificationDeps) *GamificationService {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	engine := d.Engine
	if engine == nil {
		engine = gamification.NewEngine(nil)
	}
	log := d.Logger.With("service", "GamificationService")
	retrier := d.Retrier
	if retrier == nil {
		retrier = NewRetrier(1, nil, log, d.Metrics)
	}
	return &GamificationService{
		store:    d.Store,
		catalog:  d.Catalog,
		engine:   engine,
		notifier: d.Notifier,
		retrier:  retrier,
		metrics:  d.Metrics,
		loc:      loc,
		log:      log,
	}
}

type ActivityResult struct {
	Stats     stats.UserStats           `json:"stats"`
	Progress  stats.LevelProgress       `json:"progress"`
	XPGained  int                       `json:"xp_gained"`
	LeveledUp bool                      `json:"leveled_up"`
	Awarded   []achievement.Achievement `json:"awarded"`
	Duplicate bool                      `json:"duplicate"`
	Saved     bool                      `json:"saved"`
	Warning   string                    `json:"warning,omitempty"`
}

type MilestoneEvent struct {
	UserID        string  `json:"-"`
	MilestoneID   string  `json:"milestone_id"`
	PlantID       *string `json:"plant_id"`
	MilestoneType string  `json:"milestone_type"`
	Title         string  `json:"title"`
	// PlantMilestones is the plant's milestone count as read by the database
	// trigger, this one included. Zero when unknown. The service keeps its
	// own count and never lowers it to this value.
	PlantMilestones int `json:"-"`
}

type activity struct {
	userID string
	kind   string
	// refID identifies the underlying write. Empty means the activity is
	// not deduplicated.
	refID  string
	xp     int
	reason string
	apply  func(ctx context.Context, tx Store, s stats.UserStats) (stats.UserStats, []gamification.Candidate, error)
}

func (s *GamificationService) RecordTaskCompletion(ctx context.Context, userID, taskID string, completedAt time.Time) (*ActivityResult, error) {
	now := s.engine.Now()
	if completedAt.IsZero() {
		completedAt = now
	}
	if completedAt.After(now.Add(maxCompletionSkew)) {
		return nil, fmt.Errorf("%w: completed_at %s is in the future",
			gamification.ErrInvalidInput, completedAt.Format(time.RFC3339))
	}
	return s.process(ctx, activity{
		userID: userID,
		kind:   KindTaskCompleted,
		refID:  taskID,
		xp:     TaskXP,
		reason: "Task completed",
		apply: func(_ context.Context, _ Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			st, reached, err := gamification.UpdateStreak(st, civil.DateOf(completedAt.In(s.loc)))
			if err != nil {
				return st, nil, err
			}
			st, err = gamification.IncrementStat(st, stats.TasksCompleted, 1)
			if err != nil {
				return st, nil, err
			}

			var candidates []gamification.Candidate
			candidates = append(candidates, gamification.TaskAchievements(st.TasksCompleted)...)
			candidates = append(candidates, gamification.StreakAchievements(reached)...)
			candidates = append(candidates, gamification.CompletionTimeAchievements(completedAt, s.loc)...)
			return st, candidates, nil
		},
	})
}

func (s *GamificationService) RecordPlantAdded(ctx context.Context, userID, plantID string) (*ActivityResult, error) {
	return s.process(ctx, activity{
		userID: userID,
		kind:   KindPlantAdded,
		refID:  plantID,
		xp:     PlantXP,
		reason: "Plant added to collection",
		apply: func(_ context.Context, _ Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			st, err := gamification.IncrementStat(st, stats.PlantsAdded, 1)
			if err != nil {
				return st, nil, err
			}
			return st, gamification.PlantAchievements(st.PlantsAdded, &plantID), nil
		},
	})
}

func (s *GamificationService) RecordMilestone(ctx context.Context, ev MilestoneEvent) (*ActivityResult, error) {
	return s.process(ctx, activity{
		userID: ev.UserID,
		kind:   KindMilestone,
		refID:  ev.MilestoneID,
		xp:     MilestoneXP,
		reason: "Growth milestone recorded",
		apply: func(ctx context.Context, tx Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			count := 0
			if ev.PlantID != nil && *ev.PlantID != "" {
				n, err := tx.RecordPlantMilestone(ctx, ev.UserID, *ev.PlantID, ev.PlantMilestones)
				if err != nil {
					return st, nil, err
				}
				count = n
			}
			return st, gamification.MilestoneAchievements(ev.MilestoneType, ev.Title, count, ev.PlantID), nil
		},
	})
}

func (s *GamificationService) RecordDiseaseTreated(ctx context.Context, userID, diagnosisID string, plantID *string) (*ActivityResult, error) {
	return s.process(ctx, activity{
		userID: userID,
		kind:   KindDiseaseTreated,
		refID:  diagnosisID,
		apply: func(_ context.Context, _ Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			st, err := gamification.IncrementStat(st, stats.DiseasesTreated, 1)
			if err != nil {
				return st, nil, err
			}
			candidates := gamification.DiseaseAchievements(st.DiseasesTreated)
			for i := range candidates {
				candidates[i].PlantID = plantID
			}
			return st, candidates, nil
		},
	})
}

func (s *GamificationService) RecordPerfectWeek(ctx context.Context, userID string, weekStart civil.Date) (*ActivityResult, error) {
	if !weekStart.IsValid() {
		return nil, fmt.Errorf("%w: invalid week start %v", gamification.ErrInvalidInput, weekStart)
	}
	return s.process(ctx, activity{
		userID: userID,
		kind:   KindPerfectWeek,
		refID:  weekStart.String(),
		apply: func(_ context.Context, _ Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			st, err := gamification.IncrementStat(st, stats.PerfectWeeks, 1)
			if err != nil {
				return st, nil, err
			}
			return st, gamification.PerfectWeekAchievements(st.PerfectWeeks), nil
		},
	})
}

// CheckAchievement awards achievementID when the user's stats already meet
// its requirement count. Event-only achievements are never granted here.
// Repeated calls are no-ops.
func (s *GamificationService) CheckAchievement(ctx context.Context, userID, achievementID string, plantID *string) (*ActivityResult, error) {
	if strings.TrimSpace(achievementID) == "" {
		return nil, fmt.Errorf("%w: achievement id is required", gamification.ErrInvalidInput)
	}
	defs, err := s.catalog.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement definitions: %w", err)
	}
	def, known := achievement.Find(defs, achievementID)

	return s.process(ctx, activity{
		userID: userID,
		kind:   KindManualCheck,
		apply: func(_ context.Context, _ Store, st stats.UserStats) (stats.UserStats, []gamification.Candidate, error) {
			if !known || !gamification.RequirementMet(def, st) {
				return st, nil, nil
			}
			return st, []gamification.Candidate{{AchievementID: achievementID, PlantID: plantID}}, nil
		},
	})
}

func (s *GamificationService) process(ctx context.Context, act activity) (*ActivityResult, error) {
	if strings.TrimSpace(act.userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", gamification.ErrInvalidInput)
	}
	if act.kind != KindManualCheck && strings.TrimSpace(act.refID) == "" {
		return nil, fmt.Errorf("%w: %s requires a reference id", gamification.ErrInvalidInput, act.kind)
	}

	defs, err := s.catalog.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement definitions: %w", err)
	}

	var res *ActivityResult
	err = s.retrier.Do(ctx, act.kind, func(ctx context.Context) error {
		res = nil
		return s.store.InTx(ctx, func(tx Store) error {
			r, err := s.applyActivity(ctx, tx, act, defs)
			res = r
			return err
		})
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrPersistence) && res != nil:
		s.log.Warn("activity kept in memory only",
			"user_id", act.userID, "kind", act.kind, "ref_id", act.refID, "error", err)
		res.Saved = false
		res.Warning = persistWarning
		return res, nil
	default:
		return nil, err
	}

	if res.Duplicate {
		s.log.Debug("duplicate activity ignored", "user_id", act.userID, "kind", act.kind, "ref_id", act.refID)
		s.metrics.DuplicateEvent(act.kind)
		return res, nil
	}

	s.record(act, res, defs)
	s.notify(ctx, act, res, defs)
	return res, nil
}

// applyActivity runs one attempt inside a transaction. The returned result
// is the in-memory outcome even when a write fails.
func (s *GamificationService) applyActivity(ctx context.Context, tx Store, act activity, defs []achievement.Definition) (*ActivityResult, error) {
	if act.refID != "" {
		claimed, err := tx.ClaimEvent(ctx, act.userID, act.kind, act.refID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			cur, err := s.loadStats(ctx, tx, act.userID)
			if err != nil {
				return nil, err
			}
			return &ActivityResult{
				Stats:     cur,
				Progress:  gamification.Progress(cur.TotalXP),
				Duplicate: true,
				Saved:     true,
			}, nil
		}
	}

	locked, err := tx.LockStats(ctx, act.userID)
	if err != nil {
		return nil, err
	}
	cur := *locked
	existing, err := tx.ListAchievements(ctx, act.userID)
	if err != nil {
		return nil, err
	}

	next := cur
	if act.xp > 0 {
		if next, _, err = gamification.AddXP(next, act.xp); err != nil {
			return nil, err
		}
	}
	var candidates []gamification.Candidate
	if act.apply != nil {
		if next, candidates, err = act.apply(ctx, tx, next); err != nil {
			return nil, err
		}
	}

	res := &ActivityResult{XPGained: act.xp}
	var writeErr error
	for _, c := range candidates {
		award := s.engine.CheckAndAwardAchievement(gamification.AwardRequest{
			UserID:        act.userID,
			AchievementID: c.AchievementID,
			PlantID:       c.PlantID,
			Existing:      existing,
			Definitions:   defs,
			Stats:         next,
		})
		if !award.Awarded {
			continue
		}

		inserted := true
		if writeErr == nil {
			inserted, writeErr = tx.InsertAchievement(ctx, *award.Achievement)
			if writeErr != nil {
				inserted = true
			}
		}
		existing = append(existing, *award.Achievement)
		if !inserted {
			// another observer recorded it first, its XP is already counted
			continue
		}

		next = award.Stats
		res.XPGained += award.XPDelta
		res.Awarded = append(res.Awarded, *award.Achievement)
	}

	res.Stats = next
	res.Progress = gamification.Progress(next.TotalXP)
	res.LeveledUp = next.Level > cur.Level

	if writeErr == nil {
		writeErr = tx.UpsertStats(ctx, next)
	}
	if writeErr != nil {
		return res, writeErr
	}
	res.Saved = true
	return res, nil
}

func (s *GamificationService) loadStats(ctx context.Context, store Store, userID string) (stats.UserStats, error) {
	st, err := store.GetStats(ctx, userID)
	if errors.Is(err, ErrStatsNotFound) {
		return stats.New(userID), nil
	}
	if err != nil {
		return stats.UserStats{}, err
	}
	return *st, nil
}

func (s *GamificationService) record(act activity, res *ActivityResult, defs []achievement.Definition) {
	s.metrics.XPAwarded(act.kind, act.xp)
	for _, a := range res.Awarded {
		s.metrics.AchievementUnlocked(a.AchievementID)
		if d, ok := achievement.Find(defs, a.AchievementID); ok {
			s.metrics.XPAwarded("achievement", d.XPReward)
		}
	}
	if res.LeveledUp {
		s.metrics.LevelUp()
	}
	s.log.Info("activity recorded",
		"user_id", act.userID,
		"kind", act.kind,
		"xp_gained", res.XPGained,
		"level", res.Stats.Level,
		"awarded", len(res.Awarded),
	)
}

func (s *GamificationService) notify(ctx context.Context, act activity, res *ActivityResult, defs []achievement.Definition) {
	if s.notifier == nil {
		return
	}

	if notice, ok := gamification.XPNotice(act.xp, act.reason, res.LeveledUp, res.Stats.Level); ok {
		typ := notification.NotificationXPGained
		if notice.Kind == gamification.NoticeLevelUp {
			typ = notification.NotificationLevelUp
		}
		n := notification.New(act.userID, typ, notice.Title, notice.Message)
		n.Data["total_xp"] = res.Stats.TotalXP
		n.Data["level"] = res.Stats.Level
		s.notifier.Dispatch(ctx, n)
	}

	for _, a := range res.Awarded {
		reward := 0
		if d, ok := achievement.Find(defs, a.AchievementID); ok {
			reward = d.XPReward
		}
		n := notification.New(act.userID, notification.NotificationAchievementUnlocked,
			"Achievement Unlocked!", fmt.Sprintf("%s (+%d XP)", a.Title, reward))
		n.Icon = achievement.ResolveIcon(a.Icon)
		n.Data["achievement_id"] = a.AchievementID
		n.Data["xp_reward"] = reward
		s.notifier.Dispatch(ctx, n)
	}
}

// GetStats returns the user's stats, creating the zero row on first access.
func (s *GamificationService) GetStats(ctx context.Context, userID string) (*stats.StatsResponse, error) {
	st, err := s.EnsureStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &stats.StatsResponse{Stats: *st, Progress: gamification.Progress(st.TotalXP)}, nil
}

func (s *GamificationService) EnsureStats(ctx context.Context, userID string) (*stats.UserStats, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", gamification.ErrInvalidInput)
	}

	st, err := s.store.GetStats(ctx, userID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrStatsNotFound) {
		return nil, err
	}

	var created *stats.UserStats
	err = s.retrier.Do(ctx, "create_stats", func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx Store) error {
			st, err := tx.LockStats(ctx, userID)
			created = st
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetAchievements lists earned achievements, newest first.
func (s *GamificationService) GetAchievements(ctx context.Context, userID string) ([]achievement.Achievement, error) {
	list, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Icon = achievement.ResolveIcon(list[i].Icon)
	}
	if list == nil {
		list = []achievement.Achievement{}
	}
	return list, nil
}

func (s *GamificationService) GetCatalog(ctx context.Context, userID string) ([]achievement.DefinitionWithStatus, error) {
	defs, err := s.catalog.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := achievement.WithStatus(defs, earned)
	for i := range out {
		out[i].Icon = achievement.ResolveIcon(out[i].Icon)
	}
	return out, nil
}

func (s *GamificationService) GetLeaderboard(ctx context.Context, userID string, limit int) (*leaderboard.Leaderboard, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}

	top, err := s.store.ListTopStats(ctx, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountStats(ctx)
	if err != nil {
		return nil, err
	}

	board := &leaderboard.Leaderboard{
		Entries:    make([]*leaderboard.LeaderboardEntry, 0, len(top)),
		TotalUsers: total,
	}
	for i, st := range top {
		entry := toEntry(st, i+1)
		board.Entries = append(board.Entries, entry)
		if st.UserID == userID {
			board.UserPosition = entry
		}
	}

	if board.UserPosition == nil && userID != "" {
		st, err := s.store.GetStats(ctx, userID)
		switch {
		case errors.Is(err, ErrStatsNotFound):
		case err != nil:
			return nil, err
		default:
			ahead, err := s.store.CountAhead(ctx, st.TotalXP)
			if err != nil {
				return nil, err
			}
			board.UserPosition = toEntry(*st, ahead+1)
		}
	}
	return board, nil
}

func toEntry(st stats.UserStats, rank int) *leaderboard.LeaderboardEntry {
	return &leaderboard.LeaderboardEntry{
		UserID:        st.UserID,
		TotalXP:       st.TotalXP,
		Level:         st.Level,
		CurrentStreak: st.CurrentStreakDays,
		Rank:          rank,
	}
}
