package channel_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawchamber/reminderd/internal/channel"
)

func TestLogClient_AssignsUniqueMessageIDs(t *testing.T) {
	c := channel.NewLogClient(slog.Default())

	first, err := c.Send(context.Background(), "+14155550100", "hello")
	require.NoError(t, err)
	second, err := c.Send(context.Background(), "+14155550100", "hello again")
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
