package service

import (
	"context"
	"encoding/json"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/i18n"
	"marketplace/internal/models"
	"marketplace/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Broadcaster delivers a payload to a user's live connections.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload interface{}) int
}

// Pusher sends a device push.
type Pusher interface {
	SendToUser(ctx context.Context, fcmToken string, event, title, body string, data map[string]interface{}) error
}

// NotificationService fans a Notice out to the inbox, live sockets and push.
// Failures are logged and never reach the caller.
type NotificationService struct {
	repo   *repository.NotificationRepository
	users  UserStore
	hub    Broadcaster
	push   Pusher
	// lang is used for recipients without a stored language.
	lang   language.Tag
	log    *zap.Logger
	pushTO time.Duration
}

func NewNotificationService(repo *repository.NotificationRepository, users UserStore, hub Broadcaster, push Pusher, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{
		repo:   repo,
		users:  users,
		hub:    hub,
		push:   push,
		lang:   i18n.Supported[0],
		log:    log,
		pushTO: 10 * time.Second,
	}
}

func titleKey(event string) string {
	switch event {
	case domain.EventPayoutCompleted, domain.EventPayoutFailed:
		return "notify.title.payout"
	}
	return "notify.title.wallet"
}

func (s *NotificationService) Publish(ctx context.Context, n Notice) {
	recipient := s.recipient(ctx, n.UserID)
	lang := s.lang
	if recipient != nil && recipient.Language != "" {
		lang = i18n.Match(recipient.Language)
	}
	title := i18n.T(lang, titleKey(n.Event))
	body := i18n.T(lang, n.Key, n.Args...)

	record := &models.Notification{
		UserID: n.UserID,
		Event:  n.Event,
		Title:  title,
		Body:   body,
	}
	if n.TransactionID != 0 {
		id := n.TransactionID
		record.TransactionID = &id
	}
	if n.Payload != nil {
		if b, err := json.Marshal(n.Payload); err != nil {
			s.log.Warn("encode notification data", zap.String("event", n.Event), zap.Error(err))
		} else {
			record.Data = string(b)
		}
	}
	if s.repo != nil {
		if err := s.repo.Create(context.WithoutCancel(ctx), record); err != nil {
			s.log.Error("store notification", zap.Uint("user_id", n.UserID), zap.String("event", n.Event), zap.Error(err))
		}
	}

	if s.hub != nil {
		delivered := s.hub.BroadcastToUser(n.UserID, map[string]interface{}{
			"type":         "notification",
			"event":        n.Event,
			"notification": record,
			"data":         n.Payload,
		})
		s.log.Debug("notification broadcast", zap.Uint("user_id", n.UserID), zap.String("event", n.Event), zap.Int("connections", delivered))
	}

	if s.push != nil && recipient != nil && recipient.FCMToken != "" {
		go s.sendPush(recipient.FCMToken, n, title, body)
	}
}

func (s *NotificationService) recipient(ctx context.Context, userID uint) *models.User {
	if s.users == nil {
		return nil
	}
	u, err := s.users.GetByID(context.WithoutCancel(ctx), userID)
	if err != nil {
		s.log.Warn("load notification recipient", zap.Uint("user_id", userID), zap.Error(err))
		return nil
	}
	return u
}

func (s *NotificationService) sendPush(token string, n Notice, title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pushTO)
	defer cancel()
	if err := s.push.SendToUser(ctx, token, n.Event, title, body, n.Payload); err != nil {
		s.log.Warn("push notification", zap.Uint("user_id", n.UserID), zap.String("event", n.Event), zap.Error(err))
	}
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}
