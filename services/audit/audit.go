// Package audit delivers security events to an external activity log.
// Delivery is fire-and-forget: the session core never blocks on, or fails
// because of, the sink.
package audit

import (
	"context"
	"time"

	"github.com/Delfi2007/logisync-sub000/services/logging"
	"go.uber.org/zap"
)

const (
	EventLoginSuccess     = "login_success"
	EventLoginFailure     = "login_failure"
	EventLogout           = "logout"
	EventTokenRotated     = "token_rotated"
	EventTokenRevoked     = "token_revoked"
	EventSuspiciousDevice = "suspicious_device"
)

type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    uint              `json:"user_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events for a consumer; primarily used in tests.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// ZapSink writes events to the structured log, the default destination when
// no external activity-log collaborator is wired in.
type ZapSink struct {
	logger *logging.Service
}

func NewZapSink(logger *logging.Service) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.UserID != 0 {
		fields = append(fields, zap.Uint("user_id", event.UserID))
	}
	if event.DeviceID != "" {
		fields = append(fields, zap.String("device_id", event.DeviceID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	s.logger.Info("audit event", fields...)
}
