package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBus_PublishReceive(t *testing.T) {
	bus := NewChannelBus(4)
	require.NoError(t, bus.Publish("can", []byte{0x01}))

	msg, err := bus.Receive(context.Background(), "can", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, msg.Data)
}

func TestChannelBus_ReceiveTimesOut(t *testing.T) {
	bus := NewChannelBus(4)
	msg, err := bus.Receive(context.Background(), "empty", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg.Data)
}

func TestChannelBus_DropsOldestWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	require.NoError(t, bus.Publish("can", []byte{0x01}))
	require.NoError(t, bus.Publish("can", []byte{0x02}))

	msg, err := bus.Receive(context.Background(), "can", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, msg.Data, "a full channel must drop the oldest message, not block the publisher")
}
