package connect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/paramstore"
)

type fakeClock struct {
	valid bool
	set   time.Time
}

func (c *fakeClock) Valid() bool { return c.valid }
func (c *fakeClock) Set(t time.Time) error {
	c.set = t
	return nil
}

func TestRun_ClassifiesMainAndAuxBySerial(t *testing.T) {
	sup := supervisor.New(0, 3)
	params := paramstore.NewMemory()

	main := board.NewFakeBoard(board.HwBlack, "main-serial")
	aux := board.NewFakeBoard(board.HwGrey, "aux-serial")

	opts := &Options{
		List: func() ([]string, error) { return []string{"main-serial", "aux-serial"}, nil },
		Open: func(serial string) (board.Board, error) {
			if serial == "main-serial" {
				return main, nil
			}
			return aux, nil
		},
		Params: params,
		Clock:  &fakeClock{valid: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, sup, opts))
	assert.Equal(t, main, sup.Main())
	assert.Equal(t, aux, sup.Aux())
}

func TestRun_PublishesFirmwareIdentity(t *testing.T) {
	sup := supervisor.New(0, 3)
	params := paramstore.NewMemory()

	main := board.NewFakeBoard(board.HwBlack, "main-serial")
	main.SetFirmwareVersion([8]byte{1, 2, 3, 4, 5, 6, 7, 8})

	opts := &Options{
		List:   func() ([]string, error) { return []string{"main-serial"}, nil },
		Open:   func(serial string) (board.Board, error) { return main, nil },
		Params: params,
		Clock:  &fakeClock{valid: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, sup, opts))

	hexVal, err := params.Get(paramstore.KeyPandaFirmwareHex)
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708", string(hexVal))
}

func TestRun_SetsClockFromBoardRTCWhenInvalid(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwDos, "main-serial")
	rtcTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, main.SetRTC(rtcTime))

	clock := &fakeClock{valid: false}
	opts := &Options{
		List:   func() ([]string, error) { return []string{"main-serial"}, nil },
		Open:   func(serial string) (board.Board, error) { return main, nil },
		Params: paramstore.NewMemory(),
		Clock:  clock,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, Run(ctx, sup, opts))
	assert.Equal(t, rtcTime, clock.set)
}

func TestRun_DropsBoardThatFailsOpen(t *testing.T) {
	sup := supervisor.New(0, 3)
	calls := 0
	opts := &Options{
		List: func() ([]string, error) { return []string{"serial-1"}, nil },
		Open: func(serial string) (board.Board, error) {
			calls++
			return nil, board.ErrOpenFailed
		},
		Params: paramstore.NewMemory(),
		Clock:  &fakeClock{valid: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := Run(ctx, sup, opts)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, calls, 1)
}
