package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, plainText, html string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(apiKey, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("ParkSpace", fromEmail),
	}
}

func (m *SendGridMailer) SendEmail(ctx context.Context, to, subject, plainText, html string) error {
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), plainText, html)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: send to %s: %w", to, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type TwilioTexter struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioTexter(accountSID, authToken, from string) *TwilioTexter {
	return &TwilioTexter{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username:   accountSID,
			Password:   authToken,
			AccountSid: accountSID,
		}),
		from: from,
	}
}

// SendSMS expects an E.164 number. The Twilio client has no context support,
// so ctx only short-circuits when already done.
func (t *TwilioTexter) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(to, "+") {
		return fmt.Errorf("twilio: %q is not an E.164 number", to)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio: send to %s: %w", to, err)
	}
	return nil
}
