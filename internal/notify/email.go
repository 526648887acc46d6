package notify

import (
	"context"
	"os"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/serrors"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"
)

// EmailOptions configure the SMTP channel.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// NewEmailOptions maps the SMTP settings out of the application config.
func NewEmailOptions(cfg *config.Config) EmailOptions {
	return EmailOptions{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		To:       cfg.Email.To,
		Timeout:  cfg.Email.Timeout,
	}
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends one message to all recipients over SMTP with STARTTLS.
type EmailChannel struct {
	options  EmailOptions
	sender   mailSender
	renderer *Renderer
}

// NewEmailChannel creates an EmailChannel.
func NewEmailChannel(options EmailOptions) *EmailChannel {
	dialer := gomail.NewDialer(options.Host, options.Port, options.Username, options.Password)
	if options.Timeout > 0 {
		dialer.Timeout = options.Timeout
	}
	dialer.StartTLSPolicy = gomail.MandatoryStartTLS

	return &EmailChannel{options: options, sender: dialer, renderer: NewRenderer()}
}

// Kind implements Channel.
func (c *EmailChannel) Kind() domain.ChannelKind { return domain.ChannelEmail }

// Send implements Channel. The SMTP exchange itself is bounded by the dialer
// timeout; ctx only stops the caller from waiting on it.
func (c *EmailChannel) Send(ctx context.Context, event domain.NotificationEvent) error {
	msg, err := c.renderer.Email(event)
	if err != nil {
		return serrors.Wrap(serrors.ErrChannel, err, "could not render email")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.options.From)
	m.SetHeader("To", c.options.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", event.DetectedAt)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if event.HasEvidence() {
		if _, err := os.Stat(event.EvidencePath); err != nil {
			logger.Warn(ctx, "evidence not attached", zap.String("path", event.EvidencePath), zap.Error(err))
		} else {
			m.Attach(event.EvidencePath, gomail.Rename(EvidenceFilename))
		}
	}

	logger.Debug(ctx, "sending mail", zap.Strings("to", c.options.To))

	done := make(chan error, 1)
	go func() {
		done <- c.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return serrors.Wrap(serrors.ErrChannel, err, "could not send mail")
		}

		return nil
	case <-ctx.Done():
		return serrors.Wrap(serrors.ErrChannel, ctx.Err(), "mail not confirmed in time")
	}
}
