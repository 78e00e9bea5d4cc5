package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/lawchamber/reminderd/internal/domain"
)

// TwilioConfig holds provider credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioClient delivers messages over WhatsApp via the Twilio REST API.
type TwilioClient struct {
	api  *twilio.RestClient
	from string
}

// NewTwilioClient creates a TwilioClient from config.
func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	api := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioClient{api: api, from: cfg.FromNumber}
}

func (c *TwilioClient) Send(ctx context.Context, destination, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:" + destination)
	params.SetFrom("whatsapp:" + c.from)
	params.SetBody(body)

	// The Twilio SDK call blocks without taking a context, so run it in a
	// goroutine and race it against ctx to honor the configured timeout.
	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.api.Api.CreateMessage(params)
		if err != nil {
			done <- result{err: err}
			return
		}
		if resp.Sid == nil {
			done <- result{err: errors.New("provider response missing message sid")}
			return
		}
		done <- result{sid: *resp.Sid}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", &domain.ChannelError{Destination: destination, Err: res.err}
		}
		return res.sid, nil
	case <-ctx.Done():
		return "", &domain.ChannelError{
			Destination: destination,
			Err:         fmt.Errorf("send timed out: %w", ctx.Err()),
		}
	}
}
