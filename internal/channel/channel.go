package channel

import "context"

// Client sends one text message to a phone number through the external
// messaging provider. Send is NOT idempotent: calling it twice delivers two
// messages, so callers must not retry blindly without a dedupe key.
type Client interface {
	// Send dispatches body to destination and returns the provider-assigned
	// message ID. Failures are reported as *domain.ChannelError.
	Send(ctx context.Context, destination, body string) (string, error)
}
