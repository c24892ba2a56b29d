package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hrms-api/internal/dto"
	"github.com/noah-isme/hrms-api/internal/models"
	appErrors "github.com/noah-isme/hrms-api/pkg/errors"
	"github.com/noah-isme/hrms-api/pkg/jobs"
)

const notificationJobType = "notification.deliver"

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationServiceConfig tunes delivery and retention.
type NotificationServiceConfig struct {
	Workers      int
	BufferSize   int
	Retention    time.Duration
	WriteTimeout time.Duration
}

// NotificationService delivers in-app notifications through a background
// queue and serves them back to their recipients.
type NotificationService struct {
	repo    notificationStore
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationServiceConfig
	now     func() time.Time
}

// NewNotificationService constructs the service and its delivery queue. Call
// Start before Notify to get asynchronous delivery.
func NewNotificationService(repo notificationStore, metrics *MetricsService, logger *zap.Logger, cfg NotificationServiceConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &NotificationService{repo: repo, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers. Notifications still buffered are dropped.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify queues a notification. When the queue is unavailable the
// notification is written synchronously.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) error {
	if n.UserID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n})
	if err == nil {
		return nil
	}
	s.logger.Debug("notification queue unavailable, writing inline", zap.Error(err))
	return s.deliver(ctx, n)
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	return s.deliver(ctx, n)
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, &n); err != nil {
		s.metrics.RecordNotification("failed")
		return fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}
	s.metrics.RecordNotification("delivered")
	return nil
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, caller *models.JWTClaims, query dto.NotificationQuery) ([]models.Notification, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.repo.ListByUser(ctx, models.NotificationFilter{
		UserID:     caller.UserID,
		UnreadOnly: query.UnreadOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, caller *models.JWTClaims, id string) error {
	if caller == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, id, caller.UserID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// PurgeRead removes read notifications older than the retention window. It
// is meant to run as a scheduled task.
func (s *NotificationService) PurgeRead(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.cfg.Retention)
	removed, err := s.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("purged read notifications", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}
