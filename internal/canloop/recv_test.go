package canloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/pubsub"
)

func TestRecv_PublishesMainAndAux(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	aux := board.NewFakeBoard(board.HwGrey, "aux-1")
	sup.Install(main)
	sup.Install(aux)
	main.QueueReceive([]byte{0x01, 0x02})
	aux.QueueReceive([]byte{0x03, 0x04})

	bus := pubsub.NewChannelBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Recv(ctx, sup, bus, nil)

	msg1, err := bus.Receive(context.Background(), "can", time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, msg1.Data)

	msg2, err := bus.Receive(context.Background(), "can", time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0x03, 0x04}, msg2.Data)

	sup.RequestExit()
}

func TestRecv_StopsWhenMainDisconnects(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)
	main.SetConnected(false)

	bus := pubsub.NewChannelBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		Recv(ctx, sup, bus, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recv loop did not exit when main disconnected")
	}
}
