package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/stats"
)

// MemoryStore keeps everything in process. It backs STORE_DRIVER=memory and
// the service tests. Transactions are serialized and rolled back from a
// snapshot of the transactional maps.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data memoryData
	now  func() time.Time
}

type memoryData struct {
	stats        map[string]stats.UserStats
	achievements map[string][]achievement.Achievement
	definitions  map[string]achievement.Definition
	events       map[string]struct{}
	milestones   map[string]int
	devices      map[string]map[string]notification.DeviceToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: memoryData{
			stats:        map[string]stats.UserStats{},
			achievements: map[string][]achievement.Achievement{},
			definitions:  map[string]achievement.Definition{},
			events:       map[string]struct{}{},
			milestones:   map[string]int{},
			devices:      map[string]map[string]notification.DeviceToken{},
		},
		now: time.Now,
	}
}

type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) InTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memoryTx{s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// txState holds the maps written inside transactions. Definitions and device
// tokens are written outside them and survive a rollback.
type txState struct {
	stats        map[string]stats.UserStats
	achievements map[string][]achievement.Achievement
	events       map[string]struct{}
	milestones   map[string]int
}

func (s *MemoryStore) snapshot() txState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := txState{
		stats:        make(map[string]stats.UserStats, len(s.data.stats)),
		achievements: make(map[string][]achievement.Achievement, len(s.data.achievements)),
		events:       make(map[string]struct{}, len(s.data.events)),
		milestones:   make(map[string]int, len(s.data.milestones)),
	}
	for k, v := range s.data.stats {
		cp.stats[k] = v
	}
	for k, v := range s.data.achievements {
		cp.achievements[k] = append([]achievement.Achievement(nil), v...)
	}
	for k := range s.data.events {
		cp.events[k] = struct{}{}
	}
	for k, v := range s.data.milestones {
		cp.milestones[k] = v
	}
	return cp
}

func (s *MemoryStore) restore(st txState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.stats = st.stats
	s.data.achievements = st.achievements
	s.data.events = st.events
	s.data.milestones = st.milestones
}

func (s *MemoryStore) GetStats(_ context.Context, userID string) (*stats.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data.stats[userID]
	if !ok {
		return nil, ErrStatsNotFound
	}
	return &st, nil
}

func (s *MemoryStore) UpsertStats(_ context.Context, st stats.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.data.stats[st.UserID]; ok {
		st.CreatedAt = prev.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	s.data.stats[st.UserID] = st
	return nil
}

// LockStats relies on InTx serializing transactions.
func (s *MemoryStore) LockStats(_ context.Context, userID string) (*stats.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.data.stats[userID]
	if !ok {
		st = stats.New(userID)
		now := s.now()
		st.CreatedAt = now
		st.UpdatedAt = now
		s.data.stats[userID] = st
	}
	return &st, nil
}

func (s *MemoryStore) ListAchievements(_ context.Context, userID string) ([]achievement.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.data.achievements[userID]
	out := make([]achievement.Achievement, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EarnedAt.After(out[j].EarnedAt) })
	return out, nil
}

func (s *MemoryStore) InsertAchievement(_ context.Context, a achievement.Achievement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.data.achievements[a.UserID] {
		if e.AchievementID == a.AchievementID {
			return false, nil
		}
	}
	s.data.achievements[a.UserID] = append(s.data.achievements[a.UserID], a)
	return true, nil
}

func (s *MemoryStore) ListAchievementDefinitions(_ context.Context) ([]achievement.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]achievement.Definition, 0, len(s.data.definitions))
	for _, d := range s.data.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XPReward != out[j].XPReward {
			return out[i].XPReward < out[j].XPReward
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpsertAchievementDefinitions(_ context.Context, defs []achievement.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range defs {
		if prev, ok := s.data.definitions[d.ID]; ok {
			d.CreatedAt = prev.CreatedAt
		} else if d.CreatedAt.IsZero() {
			d.CreatedAt = s.now()
		}
		s.data.definitions[d.ID] = d
	}
	return nil
}

func (s *MemoryStore) ClaimEvent(_ context.Context, userID, kind, refID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "|" + kind + "|" + refID
	if _, ok := s.data.events[key]; ok {
		return false, nil
	}
	s.data.events[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) RecordPlantMilestone(_ context.Context, userID, plantID string, reported int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "|" + plantID
	total := max(s.data.milestones[key]+1, reported)
	s.data.milestones[key] = total
	return total, nil
}

func (s *MemoryStore) ListTopStats(_ context.Context, limit int) ([]stats.UserStats, error) {
	s.mu.RLock()
	all := make([]stats.UserStats, 0, len(s.data.stats))
	for _, st := range s.data.stats {
		all = append(all, st)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalXP != all[j].TotalXP {
			return all[i].TotalXP > all[j].TotalXP
		}
		if all[i].LongestStreakDays != all[j].LongestStreakDays {
			return all[i].LongestStreakDays > all[j].LongestStreakDays
		}
		return all[i].UserID < all[j].UserID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) CountStats(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.stats), nil
}

func (s *MemoryStore) CountAhead(_ context.Context, totalXP int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.data.stats {
		if st.TotalXP > totalXP {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListStreaksAtRisk(_ context.Context, day civil.Date, minStreak int) ([]stats.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stats.UserStats
	for _, st := range s.data.stats {
		if st.LastActivityDate != nil && *st.LastActivityDate == day && st.CurrentStreakDays >= minStreak {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentStreakDays > out[j].CurrentStreakDays })
	return out, nil
}

func (s *MemoryStore) SaveDeviceToken(_ context.Context, t notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data.devices[t.UserID]
	if !ok {
		m = map[string]notification.DeviceToken{}
		s.data.devices[t.UserID] = m
	}
	if prev, ok := m[t.Token]; ok {
		t.CreatedAt = prev.CreatedAt
	} else {
		t.CreatedAt = s.now()
	}
	m[t.Token] = t
	return nil
}

func (s *MemoryStore) ListDeviceTokens(_ context.Context, userID string) ([]notification.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.DeviceToken, 0, len(s.data.devices[userID]))
	for _, t := range s.data.devices[userID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}
