package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/pkg/logger"
)

// NotificationBus carries transient notifications to the connected clients
// of a user. Subscribe's channel is closed when ctx is done.
type NotificationBus interface {
	Publish(ctx context.Context, n *notification.Notification) error
	Subscribe(ctx context.Context, userID string) (<-chan *notification.Notification, error)
}

type RedisBus struct {
	rdb    redis.UniversalClient
	prefix string
	log    *logger.Logger
}

func NewRedisBus(rdb redis.UniversalClient, prefix string, log *logger.Logger) *RedisBus {
	if prefix == "" {
		prefix = "notifications"
	}
	return &RedisBus{rdb: rdb, prefix: prefix, log: log.With("service", "RedisNotificationBus")}
}

func (b *RedisBus) channel(userID string) string {
	return b.prefix + ":" + userID
}

func (b *RedisBus) Publish(ctx context.Context, n *notification.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(n.UserID), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan *notification.Notification, error) {
	sub := b.rdb.Subscribe(ctx, b.channel(userID))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan *notification.Notification, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var n notification.Notification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					b.log.Warn("bad notification payload", "error", err)
					continue
				}
				select {
				case out <- &n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LocalBus delivers within the process. Used without Redis.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan *notification.Notification]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[string]map[chan *notification.Notification]struct{}{}}
}

func (b *LocalBus) Publish(_ context.Context, n *notification.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, userID string) (<-chan *notification.Notification, error) {
	ch := make(chan *notification.Notification, 16)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = map[chan *notification.Notification]struct{}{}
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
