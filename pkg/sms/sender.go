/**
 * @description
 * This package defines the outbound SMS contract used for one-time password
 * delivery, together with a mock implementation that only logs the message.
 * The mock stands in for a real SMS gateway in development and tests.
 *
 * @dependencies
 * - go.uber.org/zap: Structured logging.
 */
package sms

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// MockSender logs outbound messages instead of sending them.
type MockSender struct {
	logger *zap.Logger
}

// NewMockSender creates a MockSender.
func NewMockSender(logger *zap.Logger) *MockSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockSender{logger: logger}
}

func (s *MockSender) Send(ctx context.Context, to, message string) error {
	s.logger.Info("mock sms sent", zap.String("to", to), zap.String("message", message))
	return nil
}
