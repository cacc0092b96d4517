package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationXPGained            NotificationType = "xp_gained"
	NotificationLevelUp             NotificationType = "level_up"
	NotificationAchievementUnlocked NotificationType = "achievement_unlocked"
	NotificationStreakRisk          NotificationType = "streak_risk"
)

// Notification is transient: it is delivered over the stream and push
// channels and never stored.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func New(userID string, typ NotificationType, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      map[string]any{},
		CreatedAt: time.Now(),
	}
}

type DeviceToken struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
