package safetysetter

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

func trivialDecode(raw []byte) (CarParams, error) {
	return CarParams{SafetyModel: board.SafetyHondaNidec, SafetyParam: 42}, nil
}

func TestRun_FullSequenceCommissionsSafetyModel(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	aux := board.NewFakeBoard(board.HwGrey, "aux-1")
	sup.Install(main)
	sup.Install(aux)

	params := paramstore.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, sup, &Options{Params: params, Decode: trivialDecode})
	}()

	require.Eventually(t, func() bool {
		model, _ := main.SafetyModel()
		return model == board.SafetyElm327
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, params.Put(paramstore.KeyCarVin, []byte("1HGCM82633A004352")))

	require.Eventually(t, func() bool {
		model, param := main.SafetyModel()
		return model == board.SafetyElm327 && param == elm327Locked
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, params.Put(paramstore.KeyControlsReady, []byte{1}))
	require.NoError(t, params.Put(paramstore.KeyCarParams, []byte("opaque-blob")))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("safety setter did not complete")
	}

	model, param := main.SafetyModel()
	assert.Equal(t, board.SafetyHondaNidec, model)
	assert.Equal(t, uint16(42), param)
	auxModel, _ := aux.SafetyModel()
	assert.Equal(t, board.SafetyHondaNidec, auxModel)
	assert.False(t, sup.SafetySetterRunning())
}

func TestRun_RejectsShortVin(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)

	params := paramstore.NewMemory()
	require.NoError(t, params.Put(paramstore.KeyCarVin, []byte("TOOSHORT")))

	assert.Panics(t, func() {
		_ = Run(context.Background(), sup, &Options{Params: params, Decode: trivialDecode})
	}, "a VIN whose length is not 17 is a programmer-invariant violation, not a recoverable error")
	assert.False(t, sup.SafetySetterRunning())
}

func TestRun_AbortsWhenMainDisconnects(t *testing.T) {
	sup := supervisor.New(0, 3)
	main := board.NewFakeBoard(board.HwBlack, "main-1")
	sup.Install(main)
	main.SetConnected(false)

	params := paramstore.NewMemory()
	err := Run(context.Background(), sup, &Options{Params: params, Decode: trivialDecode})
	assert.ErrorIs(t, err, board.ErrNotConnected)
}
