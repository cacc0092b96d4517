package services

import (
	"context"
	"fmt"

	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/pkg/logger"
)

type NotificationService struct {
	store Store
	bus   NotificationBus
	log   *logger.Logger
}

func NewNotificationService(store Store, bus NotificationBus, log *logger.Logger) *NotificationService {
	return &NotificationService{store: store, bus: bus, log: log.With("service", "NotificationService")}
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID string, req notification.RegisterDeviceRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", gamification.ErrInvalidInput, err)
	}
	return s.store.SaveDeviceToken(ctx, notification.DeviceToken{
		UserID:   userID,
		Token:    req.Token,
		Platform: req.Platform,
	})
}

// Subscribe streams the user's notifications until ctx is done.
func (s *NotificationService) Subscribe(ctx context.Context, userID string) (<-chan *notification.Notification, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("notification stream is not configured")
	}
	return s.bus.Subscribe(ctx, userID)
}
