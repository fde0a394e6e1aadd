package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
)

// NotificationService publishes domain events after a workflow commits.
// Publishing is fire and forget: failures are logged, never propagated, so a
// broker outage cannot roll back a committed operation.
type NotificationService interface {
	Emit(tipo, userID, auctionID string, payload map[string]interface{})
}

type notificationService struct {
	notifier external.Notifier
	timeout  time.Duration
}

func NewNotificationService(notifier external.Notifier) NotificationService {
	return &notificationService{
		notifier: notifier,
		timeout:  5 * time.Second,
	}
}

func (s *notificationService) Emit(tipo, userID, auctionID string, payload map[string]interface{}) {
	event := external.Event{
		Tipo:      tipo,
		UserID:    userID,
		AuctionID: auctionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.notifier.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"tipo":    tipo,
				"user_id": userID,
			}).Warn("Failed to publish notification event")
		}
	}()
}
