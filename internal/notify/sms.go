package notify

import (
	"context"
	"errors"
	"net/http"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/serrors"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// SMSOptions configure the Twilio channel.
type SMSOptions struct {
	AccountSID string
	AuthToken  string
	From       string
	To         []string
	Timeout    time.Duration
}

// NewSMSOptions maps the Twilio settings out of the application config.
func NewSMSOptions(cfg *config.Config) SMSOptions {
	return SMSOptions{
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
		To:         cfg.SMS.To,
		Timeout:    cfg.SMS.Timeout,
	}
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSChannel sends one text message per recipient through the Twilio API.
type SMSChannel struct {
	options  SMSOptions
	api      messageCreator
	renderer *Renderer
}

// NewSMSChannel creates an SMSChannel.
func NewSMSChannel(options SMSOptions) *SMSChannel {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &client.Client{
		Credentials: client.NewCredentials(options.AccountSID, options.AuthToken),
		HTTPClient:  &http.Client{Timeout: timeout},
	}
	c.SetAccountSid(options.AccountSID)

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})

	return &SMSChannel{options: options, api: rest.Api, renderer: NewRenderer()}
}

// Kind implements Channel.
func (c *SMSChannel) Kind() domain.ChannelKind { return domain.ChannelSMS }

// Send implements Channel. Every recipient is attempted; the failures are
// joined into one error.
func (c *SMSChannel) Send(ctx context.Context, event domain.NotificationEvent) error {
	body, err := c.renderer.SMS(event)
	if err != nil {
		return serrors.Wrap(serrors.ErrChannel, err, "could not render sms")
	}

	var errs []error
	for _, to := range c.options.To {
		if err := ctx.Err(); err != nil {
			errs = append(errs, serrors.Wrap(serrors.ErrChannel, err, "sms to %s not attempted", to))

			continue
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(c.options.From)
		params.SetBody(body)

		resp, err := c.api.CreateMessage(params)
		if err != nil {
			errs = append(errs, serrors.Wrap(serrors.ErrChannel, err, "could not send sms to %s", to))

			continue
		}

		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		logger.Debug(ctx, "sms sent", zap.String("to", to), zap.String("sid", sid))
	}

	return errors.Join(errs...)
}
