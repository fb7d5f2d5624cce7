package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService manages pull-based user notifications. Status-change
// notifications are written by the request repository inside the same
// transaction as the transition; this service covers everything else.
type NotificationService struct {
	repo   notificationStore
	logger *zap.Logger
}

func NewNotificationService(repo notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// Emit appends a notification for one user. Failures are logged but not
// propagated so callers never fail their primary operation over a missed
// notification.
func (s *NotificationService) Emit(ctx context.Context, userID, message string, severity models.NotificationSeverity) {
	n := &models.Notification{
		ID:       uuid.New().String(),
		UserID:   userID,
		Message:  message,
		Severity: severity,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("failed to emit notification", zap.String("user_id", userID), zap.Error(err))
	}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkAllRead flips every unread notification of the user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
