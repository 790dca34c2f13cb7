// Package audit records security-relevant requests to a sink.
package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/logging"
)

type Event struct {
	Time      time.Time `json:"@timestamp"`
	Action    string    `json:"action"`
	UserID    uint      `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Outcome   string    `json:"outcome"`
	Kind      string    `json:"error_kind,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e Event) key() string {
	if e.UserID != 0 {
		return strconv.FormatUint(uint64(e.UserID), 10)
	}
	return e.IP
}

type Sink interface {
	Record(ctx context.Context, ev Event) error
}

type Log struct {
	logger *slog.Logger
}

func NewLog(l *slog.Logger) *Log { return &Log{logger: l} }

func (s *Log) Record(ctx context.Context, ev Event) error {
	l := s.logger
	if l == nil {
		l = logging.FromContext(ctx)
	}
	l.Info("audit",
		"action", ev.Action,
		"user_id", ev.UserID,
		"role", ev.Role,
		"ip", ev.IP,
		"method", ev.Method,
		"path", ev.Path,
		"status", ev.Status,
		"outcome", ev.Outcome,
		"error_kind", ev.Kind,
	)
	return nil
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Kafka struct {
	pub   Publisher
	topic string
}

func NewKafka(pub Publisher, topic string) *Kafka {
	return &Kafka{pub: pub, topic: topic}
}

func (s *Kafka) Record(ctx context.Context, ev Event) error {
	return s.pub.PublishEvent(ctx, s.topic, ev.key(), ev)
}
