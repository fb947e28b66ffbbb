package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/pkg/jobs"
)

const (
	notifyKindDecisionNeeded = "approval.decision_needed"
	notifyKindDecided        = "approval.decided"
)

type notificationPayload struct {
	Approval *models.Approval
	OwnerID  string
}

// Notification is an in-app message delivered to a user's feed.
type Notification struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Read    bool   `json:"read"`
}

// NotificationService fans workflow events out to per-user in-app feeds
// through a background worker queue so request latency stays flat.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger

	mu    sync.RWMutex
	feeds map[string][]Notification
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(logger *zap.Logger, workers, buffer int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		logger: logger,
		feeds:  make(map[string][]Notification),
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: buffer,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyDecisionNeeded implements Notifier.
func (s *NotificationService) NotifyDecisionNeeded(approval *models.Approval) {
	s.enqueue(notifyKindDecisionNeeded, notificationPayload{Approval: approval})
}

// NotifyDecided implements Notifier.
func (s *NotificationService) NotifyDecided(approval *models.Approval, ownerID string) {
	s.enqueue(notifyKindDecided, notificationPayload{Approval: approval, OwnerID: ownerID})
}

// Feed returns the buffered notifications for a user, newest first.
func (s *NotificationService) Feed(userID string) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed := s.feeds[userID]
	out := make([]Notification, len(feed))
	for i, n := range feed {
		out[len(feed)-1-i] = n
	}
	return out
}

func (s *NotificationService) enqueue(kind string, payload notificationPayload) {
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Kind: kind, Payload: payload}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		s.logger.Warn("dropping notification with unexpected payload", zap.String("job", job.ID))
		return nil
	}

	var target, message string
	switch job.Kind {
	case notifyKindDecisionNeeded:
		target = payload.Approval.ApproverID
		message = "A submission is waiting for your decision"
	case notifyKindDecided:
		target = payload.OwnerID
		if payload.Approval.Status == models.ApprovalApproved {
			message = "Your submission was approved"
		} else {
			message = "Your submission was rejected"
		}
	default:
		return nil
	}

	s.mu.Lock()
	s.feeds[target] = append(s.feeds[target], Notification{
		ID:      job.ID,
		UserID:  target,
		Kind:    job.Kind,
		Message: message,
	})
	// Keep feeds bounded.
	if len(s.feeds[target]) > 100 {
		s.feeds[target] = s.feeds[target][len(s.feeds[target])-100:]
	}
	s.mu.Unlock()

	s.logger.Debug("notification delivered", zap.String("user", target), zap.String("kind", job.Kind))
	return nil
}
