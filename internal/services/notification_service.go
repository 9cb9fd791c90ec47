package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/pkg/rabbitmq"

	"go.uber.org/zap"
)

// Notification kinds.
const (
	NotifyProblemReported = "problem_reported"
	NotifyPostPublished   = "post_published"
	NotifyCommentAdded    = "comment_added"
	NotifyAnalysisReady   = "analysis_ready"
)

// NotificationEvent is the message carried on the notifications queue.
type NotificationEvent struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// NotificationService publishes domain events and turns consumed ones into rows.
type NotificationService struct {
	broker rabbitmq.Broker
	table  repositories.Table[models.Notification]
	logger *zap.Logger

	// Now is replaceable for tests.
	Now func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(broker rabbitmq.Broker, table repositories.Table[models.Notification], logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{broker: broker, table: table, logger: logger, Now: time.Now}
}

// Publish enqueues ev. Failures are logged and returned; callers treat them as non-fatal.
func (s *NotificationService) Publish(ev NotificationEvent) error {
	if err := s.broker.PublishJSON(rabbitmq.QueueNotifications, ev); err != nil {
		s.logger.Warn("failed to publish notification", zap.String("kind", ev.Kind), zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Start consumes the notifications queue until the broker closes. The returned channel is
// closed when consumption stops.
func (s *NotificationService) Start() (<-chan struct{}, error) {
	done, err := s.broker.Consume(rabbitmq.QueueNotifications, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to consume notifications: %w", err)
	}
	return done, nil
}

func (s *NotificationService) handle(body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		s.logger.Error("invalid notification payload", zap.Error(err))
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if ev.UserID == "" {
		return fmt.Errorf("notification %q has no recipient", ev.Kind)
	}

	row := &models.Notification{Kind: ev.Kind, Title: ev.Title, Body: ev.Body}
	row.SetOwner(ev.UserID)
	if err := s.table.Insert(context.Background(), row); err != nil {
		s.logger.Error("failed to store notification", zap.String("user_id", ev.UserID), zap.Error(err))
		return err
	}
	return nil
}

// List returns the notifications of userID, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	rows, err := s.table.List(ctx, repositories.Query{Filters: map[string]any{"user_id": userID}, Limit: maxListLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if !unreadOnly {
		return rows, nil
	}
	unread := rows[:0]
	for _, n := range rows {
		if n.ReadAt == nil {
			unread = append(unread, n)
		}
	}
	return unread, nil
}

// MarkRead flags notification id as read. Other users' notifications are reported as
// not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.table.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, repositories.ErrNotFound)
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.table.UpdateColumns(ctx, id, map[string]any{"read_at": s.Now()})
}

// NotifyOnInsert returns an insert hook that publishes the event built by build. build
// returns false to skip the row.
func NotifyOnInsert[T any](s *NotificationService, build func(ctx context.Context, userID string, row *T) (NotificationEvent, bool)) func(context.Context, string, *T) {
	return func(ctx context.Context, userID string, row *T) {
		if ev, ok := build(ctx, userID, row); ok {
			_ = s.Publish(ev)
		}
	}
}
