package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gamification counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	xpAwarded            *prometheus.CounterVec
	achievementsUnlocked *prometheus.CounterVec
	levelUps             prometheus.Counter
	duplicateEvents      *prometheus.CounterVec
	persistRetries       *prometheus.CounterVec
	persistFailures      *prometheus.CounterVec
	notificationsSent    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		xpAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_xp_awarded_total",
				Help: "XP granted, by source",
			},
			[]string{"source"},
		),
		achievementsUnlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_achievements_unlocked_total",
				Help: "Achievements unlocked, by achievement id",
			},
			[]string{"achievement_id"},
		),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Number of level increases",
		}),
		duplicateEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_duplicate_events_total",
				Help: "Activity events ignored because they were already processed",
			},
			[]string{"kind"},
		),
		persistRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_persist_retries_total",
				Help: "Retried persistence operations",
			},
			[]string{"operation"},
		),
		persistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_persist_failures_total",
				Help: "Persistence operations that failed after all retries",
			},
			[]string{"operation"},
		),
		notificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamification_notifications_total",
				Help: "Notifications dispatched, by type and channel",
			},
			[]string{"type", "channel"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.xpAwarded,
			m.achievementsUnlocked,
			m.levelUps,
			m.duplicateEvents,
			m.persistRetries,
			m.persistFailures,
			m.notificationsSent,
		)
	}
	return m
}

func (m *Metrics) XPAwarded(source string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.xpAwarded.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) AchievementUnlocked(id string) {
	if m == nil {
		return
	}
	m.achievementsUnlocked.WithLabelValues(id).Inc()
}

func (m *Metrics) LevelUp() {
	if m == nil {
		return
	}
	m.levelUps.Inc()
}

func (m *Metrics) DuplicateEvent(kind string) {
	if m == nil {
		return
	}
	m.duplicateEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) PersistRetry(op string) {
	if m == nil {
		return
	}
	m.persistRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) PersistFailure(op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) NotificationSent(kind, channel string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(kind, channel).Inc()
}
