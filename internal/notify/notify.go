// Package notify delivers out-of-band messages (OTP codes) to users.
// Delivery is fire-and-forget from the caller's point of view: callers log
// failures and carry on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/logging"
)

type Message struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Kind    string    `json:"kind"`
	SentAt  time.Time `json:"sent_at"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

const (
	KindLoginOTP = "login_otp"
	KindResetOTP = "password_reset_otp"
)

func LoginOTP(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Kind:    KindLoginOTP,
		Subject: "Your login verification code",
		Body: fmt.Sprintf("Your verification code is %s. It expires in %d minutes. "+
			"If you did not try to sign in, change your password.", code, int(ttl.Minutes())),
	}
}

func ResetOTP(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Kind:    KindResetOTP,
		Subject: "Password reset code",
		Body: fmt.Sprintf("Your password reset code is %s. It expires in %d minutes. "+
			"If you did not request a reset, ignore this message.", code, int(ttl.Minutes())),
	}
}

// Log writes the envelope of each message to the logger and drops the body.
// Useful in development where no mail relay exists.
type Log struct {
	logger *slog.Logger
}

func NewLog(l *slog.Logger) *Log { return &Log{logger: l} }

func (n *Log) Send(ctx context.Context, msg Message) error {
	l := n.logger
	if l == nil {
		l = logging.FromContext(ctx)
	}
	l.Info("notification_sent", "to", msg.To, "kind", msg.Kind, "subject", msg.Subject)
	return nil
}

func stamp(msg Message) Message {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	return msg
}
