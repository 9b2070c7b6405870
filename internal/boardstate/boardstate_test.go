package boardstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/paramstore"
	"github.com/boardd/boardd/pkg/pubsub"
)

type fixedClock struct {
	now time.Time
	ok  bool
}

func (c fixedClock) Valid() bool      { return c.ok }
func (c fixedClock) Now() time.Time   { return c.now }

func newOpts(pub pubsub.Publisher, params paramstore.ParamStore) *Options {
	return &Options{
		Pub:    pub,
		Params: params,
		Clock:  fixedClock{now: time.Now(), ok: true},
		Encode: func(m PandaStateMessage) []byte { return []byte{1} },
	}
}

func TestRun_ColdBootIgnitionOffPublishesKeepAlive(t *testing.T) {
	sup := supervisor.New(0, 3)
	bus := pubsub.NewChannelBus(4)
	opts := newOpts(bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		Run(ctx, sup, opts)
		close(done)
	}()

	msg, err := bus.Receive(context.Background(), pandaStateChannel, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, msg.Data)

	sup.RequestExit()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after RequestExit")
	}
}

func TestTick_IgnitionRisingEdgeClearsParamsAndStartsSafetySetter(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)
	main.SetState(board.HealthSnapshot{IgnitionLine: true})

	params := paramstore.NewMemory()
	params.SetTags("CarVin", paramstore.TagClearOnIgnitionOn)
	require.NoError(t, params.Put("CarVin", []byte("1HGCM82633A004352")))

	launched := false
	opts := newOpts(nil, params)
	opts.LaunchSafetySetter = func(ctx context.Context) { launched = true }

	var st loopState
	tick(context.Background(), sup, main, opts, &st, nil)

	v, err := params.Get("CarVin")
	require.NoError(t, err)
	assert.Empty(t, v, "CLEAR_ON_IGNITION_ON params must be cleared on rising edge")
	assert.True(t, launched, "safety setter must be launched on rising edge")
	assert.True(t, sup.SafetySetterRunning())
	assert.True(t, sup.Ignition())
}

func TestTick_IgnitionFallingEdgeSetsSafetyOff(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)
	_ = main.SetSafetyModel(board.SafetyElm327, 1)
	main.SetState(board.HealthSnapshot{IgnitionLine: false})

	opts := newOpts(nil, nil)
	st := loopState{lastIgnition: true}
	tick(context.Background(), sup, main, opts, &st, nil)

	model, _ := main.SafetyModel()
	assert.Equal(t, board.SafetyNoOutput, model)
	assert.False(t, sup.Ignition())
}

func TestCoerceSilent_BecomesNoOutput(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)
	_ = main.SetSafetyModel(board.SafetySilent, 0)
	main.SetState(board.HealthSnapshot{})

	opts := newOpts(nil, nil)
	var st loopState
	tick(context.Background(), sup, main, opts, &st, nil)

	model, _ := main.SafetyModel()
	assert.Equal(t, board.SafetyNoOutput, model)
}

func TestMaybeWriteRTC_WriteBackBoundary(t *testing.T) {
	main := board.NewFakeBoard(board.HwDos, "main-1")
	require.True(t, main.HasRTC())

	host := time.Now()
	_ = main.SetRTC(host.Add(-1101 * time.Millisecond))
	opts := newOpts(nil, nil)
	opts.Clock = fixedClock{now: host, ok: true}
	st := &loopState{noIgnitionCnt: 1}

	maybeWriteRTC(main, opts, st, false)
	rtc, _ := main.GetRTC()
	assert.WithinDuration(t, host, rtc, time.Millisecond, "drift over 1.1s must trigger a write-back")
}

func TestMaybeWriteRTC_NoWriteBackUnderThreshold(t *testing.T) {
	main := board.NewFakeBoard(board.HwDos, "main-1")
	host := time.Now()
	staleRTC := host.Add(-900 * time.Millisecond)
	_ = main.SetRTC(staleRTC)
	opts := newOpts(nil, nil)
	opts.Clock = fixedClock{now: host, ok: true}
	st := &loopState{noIgnitionCnt: 1}

	maybeWriteRTC(main, opts, st, false)
	rtc, _ := main.GetRTC()
	assert.WithinDuration(t, staleRTC, rtc, time.Millisecond, "drift under 1.1s must not trigger a write-back")
}
