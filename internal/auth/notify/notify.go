// Package notify delivers one-time codes to users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends a message to a single recipient.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// MFACode builds the login verification email.
func MFACode(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your MFA Code",
		Body:    fmt.Sprintf("Your verification code is: %s. This code will expire in %s.", code, humanize(ttl)),
	}
}

// ResetCode builds the password reset email.
func ResetCode(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Password Reset OTP",
		Body:    fmt.Sprintf("Your password reset code is: %s. This code will expire in %s.", code, humanize(ttl)),
	}
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if n := int(d / time.Minute); n != 1 {
			return fmt.Sprintf("%d minutes", n)
		}
		return "1 minute"
	default:
		return d.String()
	}
}

// LogNotifier records that a message was due without delivering it. Only
// meant for local development where no mail relay is configured. Bodies
// carry one-time codes and are never logged; run a local relay such as
// mailpit to read them. Config validation refuses it in production.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	l := n.Logger
	if l == nil {
		l = slogx.FromContext(ctx)
	}
	l.Info("notification not delivered, no mail relay configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of what was sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent message for to.
func (r *Recorder) Last(to string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].To == to {
			return r.messages[i], true
		}
	}
	return Message{}, false
}
