package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// LogClient writes would-be messages to the log instead of a provider.
// Used for local development and staging, where real WhatsApp sends are
// unwanted.
type LogClient struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewLogClient creates a LogClient.
func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) Send(_ context.Context, destination, body string) (string, error) {
	id := fmt.Sprintf("log-%06d", c.seq.Add(1))
	c.logger.Info("message sent (log channel)",
		slog.String("destination", destination),
		slog.String("body", body),
		slog.String("message_id", id),
	)
	return id, nil
}
