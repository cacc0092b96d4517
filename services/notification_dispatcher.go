package services

import (
	"context"
	"sync"
	"time"

	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/observability"
	"floraGuardAPI/internal/pkg/logger"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

type DeviceTokenSource interface {
	ListDeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)
}

// NotificationDispatcher fans notifications out to the stream bus and to push
// devices from a fixed worker pool.
type NotificationDispatcher struct {
	bus          NotificationBus
	tokens       DeviceTokenSource
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	metrics      *observability.Metrics
	log          *logger.Logger
}

func NewNotificationDispatcher(bus NotificationBus, tokens DeviceTokenSource, workers int, metrics *observability.Metrics, log *logger.Logger) *NotificationDispatcher {
	if workers <= 0 {
		workers = 5
	}
	d := &NotificationDispatcher{
		bus:      bus,
		tokens:   tokens,
		workers:  workers,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
		metrics:  metrics,
		log:      log.With("service", "NotificationDispatcher"),
	}
	d.startWorkers()
	return d
}

// SetPushProvider must be called before the first Dispatch.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.processJob(n)
		case <-d.stopChan:
			// drain what is already queued
			for {
				select {
				case n := <-d.jobQueue:
					d.processJob(n)
				default:
					return
				}
			}
		}
	}
}

func (d *NotificationDispatcher) processJob(n *notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.bus != nil {
		if err := d.bus.Publish(ctx, n); err != nil {
			d.log.Warn("stream publish failed", "user_id", n.UserID, "type", n.Type, "error", err)
		} else {
			d.metrics.NotificationSent(string(n.Type), "stream")
		}
	}

	if !pushWorthy(n.Type) || d.pushProvider == nil || d.tokens == nil {
		return
	}

	tokens, err := d.tokens.ListDeviceTokens(ctx, n.UserID)
	if err != nil {
		d.log.Warn("failed to load device tokens", "user_id", n.UserID, "error", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]any{"notification_id": n.ID.String(), "type": string(n.Type)}
	for k, v := range n.Data {
		data[k] = v
	}
	if err := d.pushProvider.SendPush(ctx, tokens, n.Title, n.Message, data); err != nil {
		d.log.Warn("push failed", "user_id", n.UserID, "type", n.Type, "error", err)
		return
	}
	d.metrics.NotificationSent(string(n.Type), "push")
}

// xp_gained only goes to open clients.
func pushWorthy(t notification.NotificationType) bool {
	return t != notification.NotificationXPGained
}

// Dispatch queues n. It gives up after 5 seconds when the queue is full.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n *notification.Notification) {
	select {
	case <-d.stopChan:
		d.log.Warn("dispatcher stopped, dropping notification", "id", n.ID)
		return
	default:
	}

	select {
	case d.jobQueue <- n:
	case <-ctx.Done():
		d.log.Warn("notification not queued", "id", n.ID, "error", ctx.Err())
	case <-time.After(5 * time.Second):
		d.log.Warn("notification queue full", "id", n.ID)
	}
}

func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info("stopping notification dispatcher")
		close(d.stopChan)
		d.wg.Wait()
	})
}
