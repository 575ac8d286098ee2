package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/models"
	"github.com/reunitehq/reunite-api/pkg/config"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
	"github.com/reunitehq/reunite-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id, userID string) error
}

// NotificationService is both the durable notification sink consumed by
// the match recorder (via the in-process dispatch queue) and the
// read/acknowledge API behind the notifications endpoints.
type NotificationService struct {
	repo    notificationRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewNotificationService constructs the service and its dispatch queue.
func NewNotificationService(repo notificationRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg config.NotificationsConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{repo: repo, cache: cache, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("notifications", svc.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a notification for durable persistence. It never
// returns an error to the caller: emission is fire-and-forget and must
// not fail or block the operation that raised it, so a full buffer
// drops the notification rather than stalling the submitter.
func (s *NotificationService) Dispatch(n models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: string(n.Type), Payload: n}); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			s.logger.Warn("dropping notification, dispatch buffer full",
				zap.String("notification_id", n.ID),
				zap.String("user_id", n.UserID))
			return
		}
		s.logger.Error("failed to enqueue notification",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationDispatched()
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return err
	}
	s.invalidateUnread(ctx, n.UserID)
	return nil
}

// NotificationFeed bundles the newest notifications with the unread count.
type NotificationFeed struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
}

// List returns the newest notifications and the unread counter.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) (*NotificationFeed, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NotificationFeed{Notifications: notifications, UnreadCount: unread}, nil
}

// UnreadCount returns the unread counter, served from cache when warm.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCacheKey(userID)
	var cached int
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	_ = s.cache.Set(ctx, key, count, time.Minute)
	return count, nil
}

// MarkRead acknowledges one notification.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (int, error) {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.invalidateUnread(ctx, userID)
	return s.UnreadCount(ctx, userID)
}

// MarkAllRead acknowledges every unread notification of a user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// Delete removes a notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, unreadCacheKey(userID))
}

func unreadCacheKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}
