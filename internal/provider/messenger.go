package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eti-roma/verte-culture-connect-sub000/pkg/rabbitmq"

	"go.uber.org/zap"
)

// Message kinds dispatched by the local provider.
const (
	KindOTP               = "otp"
	KindEmailConfirmation = "email_confirmation"
	KindPasswordRecovery  = "password_recovery"
)

// Message is an outbound SMS or email. Delivery happens outside this service.
type Message struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Link    string `json:"link,omitempty"`
}

// Messenger hands messages to whatever delivers SMS and email.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher is the subset of the broker used by QueueMessenger.
type Publisher interface {
	PublishJSON(queue string, payload any) error
}

// QueueMessenger publishes messages on the auth message queue.
type QueueMessenger struct {
	publisher Publisher
}

// NewQueueMessenger creates a new QueueMessenger.
func NewQueueMessenger(publisher Publisher) *QueueMessenger {
	return &QueueMessenger{publisher: publisher}
}

// Send publishes msg.
func (m *QueueMessenger) Send(_ context.Context, msg Message) error {
	if err := m.publisher.PublishJSON(rabbitmq.QueueAuthMessages, msg); err != nil {
		return fmt.Errorf("failed to dispatch %s message: %w", msg.Kind, err)
	}
	return nil
}

// LogDelivery returns a queue handler that records dispatched messages without their
// passcode or link. It stands in for a real SMS/email gateway.
func LogDelivery(logger *zap.Logger) func(body []byte) error {
	return func(body []byte) error {
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			logger.Warn("undecodable auth message", zap.Int("bytes", len(body)), zap.Error(err))
			return nil
		}
		logger.Info("auth message",
			zap.String("kind", msg.Kind),
			zap.String("channel", msg.Channel),
			zap.String("to", msg.To),
		)
		logger.Debug("auth message secret",
			zap.Bool("has_code", msg.Code != ""),
			zap.Bool("has_link", msg.Link != ""),
		)
		return nil
	}
}
