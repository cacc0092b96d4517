package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"floraGuardAPI/internal/migrations"
	"floraGuardAPI/internal/pkg/logger"
)

// ActivityRecorder is the part of GamificationService the change feed drives.
type ActivityRecorder interface {
	RecordTaskCompletion(ctx context.Context, userID, taskID string, completedAt time.Time) (*ActivityResult, error)
	RecordPlantAdded(ctx context.Context, userID, plantID string) (*ActivityResult, error)
	RecordMilestone(ctx context.Context, ev MilestoneEvent) (*ActivityResult, error)
}

// ChangeFeedListener turns Postgres NOTIFY messages from the plant tables
// into activity events. The service deduplicates them against the UI
// callbacks for the same rows.
type ChangeFeedListener struct {
	pool     *pgxpool.Pool
	recorder ActivityRecorder
	backoff  heimdall.Retriable
	log      *logger.Logger
}

func NewChangeFeedListener(pool *pgxpool.Pool, recorder ActivityRecorder, log *logger.Logger) *ChangeFeedListener {
	return &ChangeFeedListener{
		pool:     pool,
		recorder: recorder,
		backoff:  heimdall.NewRetrier(heimdall.NewExponentialBackoff(time.Second, 30*time.Second, 2, 500*time.Millisecond)),
		log:      log.With("service", "ChangeFeedListener"),
	}
}

// Run listens until ctx is done, reconnecting with backoff.
func (l *ChangeFeedListener) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		delay := l.backoff.NextInterval(attempt)
		l.log.Warn("change feed disconnected", "error", err, "retry_in", delay.String())
		if werr := wait(ctx, delay); werr != nil {
			return nil
		}
	}
}

func (l *ChangeFeedListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	for _, ch := range []string{migrations.ChannelTaskCompleted, migrations.ChannelPlantAdded, migrations.ChannelMilestone} {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", ch, err)
		}
	}
	l.log.Info("change feed listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := l.Handle(ctx, n.Channel, n.Payload); err != nil {
			l.log.Warn("change feed event failed", "channel", n.Channel, "error", err)
		}
	}
}

// flexID accepts both JSON strings and numbers, since the plant tables may
// use either for their keys.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(b)
	return nil
}

type taskCompletedPayload struct {
	UserID      flexID `json:"user_id"`
	TaskID      flexID `json:"task_id"`
	PlantID     flexID `json:"plant_id"`
	CompletedAt string `json:"completed_at"`
}

type plantAddedPayload struct {
	UserID  flexID `json:"user_id"`
	PlantID flexID `json:"plant_id"`
}

type milestonePayload struct {
	UserID          flexID `json:"user_id"`
	MilestoneID     flexID `json:"milestone_id"`
	PlantID         flexID `json:"plant_id"`
	MilestoneType   string `json:"milestone_type"`
	Title           string `json:"title"`
	PlantMilestones int    `json:"plant_milestone_count"`
}

// Handle processes one NOTIFY payload.
func (l *ChangeFeedListener) Handle(ctx context.Context, channel, payload string) error {
	var (
		res *ActivityResult
		err error
	)

	switch channel {
	case migrations.ChannelTaskCompleted:
		var p taskCompletedPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		completedAt, perr := parsePgTimestamp(p.CompletedAt)
		if perr != nil {
			return perr
		}
		res, err = l.recorder.RecordTaskCompletion(ctx, string(p.UserID), string(p.TaskID), completedAt)

	case migrations.ChannelPlantAdded:
		var p plantAddedPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		res, err = l.recorder.RecordPlantAdded(ctx, string(p.UserID), string(p.PlantID))

	case migrations.ChannelMilestone:
		var p milestonePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		ev := MilestoneEvent{
			UserID:          string(p.UserID),
			MilestoneID:     string(p.MilestoneID),
			MilestoneType:   p.MilestoneType,
			Title:           p.Title,
			PlantMilestones: p.PlantMilestones,
		}
		if p.PlantID != "" {
			plantID := string(p.PlantID)
			ev.PlantID = &plantID
		}
		res, err = l.recorder.RecordMilestone(ctx, ev)

	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	if err != nil {
		return err
	}
	if res != nil && !res.Saved {
		l.log.Warn("change feed event not persisted", "channel", channel, "warning", res.Warning)
	}
	return nil
}

// parsePgTimestamp reads json_build_object output for timestamptz and
// timestamp columns. An empty value means now.
func parsePgTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999Z07", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}
