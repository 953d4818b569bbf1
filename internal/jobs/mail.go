package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-queue/internal/task"
)

// TypeSendMail is the type identifier of SendMailTask.
const TypeSendMail = "send_mail"

// sendMailTimeout bounds a delivery claim, in seconds.
const sendMailTimeout = 60

// Message is an outgoing email.
type Message struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body"`
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer is a Mailer that logs each message instead of delivering it.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer writing to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "log_mailer")}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "mail sent",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body))
	return nil
}

// SendMailTask delivers a single message.
type SendMailTask struct {
	task.Base
	Message

	mailer   Mailer
	validate *validator.Validate
}

// NewSendMailTask creates a delivery request for msg.
func NewSendMailTask(msg Message) *SendMailTask {
	return &SendMailTask{Message: msg}
}

// Type returns the task type identifier
func (t *SendMailTask) Type() string {
	return TypeSendMail
}

// TimeoutSeconds returns the fixed delivery deadline.
func (t *SendMailTask) TimeoutSeconds() int {
	return sendMailTimeout
}

// Execute validates the message and hands it to the mailer.
func (t *SendMailTask) Execute(ctx context.Context) error {
	if t.validate == nil {
		t.validate = validator.New()
	}
	if err := t.validate.Struct(t.Message); err != nil {
		return task.NewValidationError("invalid message: %v", err)
	}
	if t.mailer == nil {
		return fmt.Errorf("no mailer configured for %s", TypeSendMail)
	}

	if err := t.mailer.Send(ctx, t.Message); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", t.To, err)
	}
	t.Complete()
	return nil
}
