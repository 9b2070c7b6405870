package hwcontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boardd/boardd/internal/platform"
	"github.com/boardd/boardd/pkg/board"
)

func TestIRCurve_Boundaries(t *testing.T) {
	const cutoff, saturate, min, max = 200.0, 1600.0, 0.0, 0.5

	assert.Equal(t, 0.0, IRCurve(200, cutoff, saturate, min, max))
	assert.Equal(t, 0.0, IRCurve(50, cutoff, saturate, min, max), "below cutoff clamps to minPower")
	assert.Equal(t, 50.0, IRCurve(1600, cutoff, saturate, min, max))
	assert.Equal(t, 50.0, IRCurve(5000, cutoff, saturate, min, max), "above saturate clamps to maxPower")
	assert.InDelta(t, 25.0, IRCurve(900, cutoff, saturate, min, max), 0.01)
}

func TestSendIR_ForcesZeroAfterCameraTimeout(t *testing.T) {
	fake := board.NewFakeBoard(board.HwBlack, "main-1")
	opts := &Options{
		Platform:   platform.PC,
		CutoffIL:   200,
		SaturateIL: 1600,
		MinIRPower: 0,
		MaxIRPower: 0.5,
	}
	st := &loopState{}
	sendIR(fake, DeviceState{IntegLines: 1600, CameraFrameAge: 2 * CameraFrameTimeout}, opts, st, nil)
	assert.Equal(t, uint16(0), fake.IRPower())
}

func TestSendIR_KeepAliveResendsEvery100Iterations(t *testing.T) {
	fake := board.NewFakeBoard(board.HwBlack, "main-1")
	opts := &Options{
		Platform:   platform.PC,
		CutoffIL:   200,
		SaturateIL: 1600,
		MinIRPower: 0,
		MaxIRPower: 0.5,
	}
	st := &loopState{iteration: 0}
	sendIR(fake, DeviceState{IntegLines: 900}, opts, st, nil)
	assert.Equal(t, uint16(25), fake.IRPower())

	// Change the board's IR power out-of-band to prove the next send is a
	// true keepalive re-send, not a no-op skipped by the unchanged check.
	_ = fake.SetIRPower(0)
	st.iteration = 100
	sendIR(fake, DeviceState{IntegLines: 900}, opts, st, nil)
	assert.Equal(t, uint16(25), fake.IRPower(), "keepalive iteration must re-send even when value is unchanged")
}

func TestSendIR_TICIFiltersIntegLinesBeforeCurve(t *testing.T) {
	fake := board.NewFakeBoard(board.HwBlack, "main-1")
	opts := &Options{
		Platform:   platform.TICI,
		CutoffIL:   200,
		SaturateIL: 1600,
		MinIRPower: 0,
		MaxIRPower: 0.5,
	}
	st := &loopState{}

	// A single tick starting from a filtered state of 0 must ease the
	// integLines reading toward 1600, not jump straight to the curve's
	// saturated output for 1600.
	sendIR(fake, DeviceState{IntegLines: 1600}, opts, st, nil)
	assert.Less(t, st.filteredIntegLines, 1600.0, "filtered integLines must ease up from the primed 0, not jump to the raw reading")
	assert.Equal(t, uint16(0), fake.IRPower(), "the eased-up integLines reading still sits below cutoff on tick one")
}

func TestSendFan_GatedToUnoAndDos(t *testing.T) {
	fake := board.NewFakeBoard(board.HwGrey, "main-1")
	st := &loopState{}
	tick(fake, &Options{
		State:      func() DeviceState { return DeviceState{FanSpeedPct: 80} },
		Platform:   platform.PC,
		CutoffIL:   200,
		SaturateIL: 1600,
		MaxIRPower: 0.5,
	}, st, nil)
	rpm, _ := fake.GetFanSpeed()
	assert.Equal(t, uint16(0), rpm, "fan commands must not reach non-UNO/DOS hardware")
}

func TestSendChargeMode_OnlySentOnTransition(t *testing.T) {
	fake := board.NewFakeBoard(board.HwUno, "main-1")
	st := &loopState{}

	sendChargeMode(fake, board.PowerCDP, st, nil)
	assert.Equal(t, board.PowerCDP, fake.USBPowerMode())

	// Command a different mode out-of-band to prove a repeated call with
	// the same desired mode is a true no-op, not masked by a coincidence.
	_ = fake.SetUSBPowerMode(board.PowerDCP)
	sendChargeMode(fake, board.PowerCDP, st, nil)
	assert.Equal(t, board.PowerDCP, fake.USBPowerMode(), "unchanged desired mode must not be re-sent")

	sendChargeMode(fake, board.PowerClient, st, nil)
	assert.Equal(t, board.PowerClient, fake.USBPowerMode(), "a real transition must be sent")
}

func TestTick_SkipsChargingOnPC(t *testing.T) {
	fake := board.NewFakeBoard(board.HwUno, "main-1")
	st := &loopState{}
	tick(fake, &Options{
		State:      func() DeviceState { return DeviceState{ShouldCharge: true, FanSpeedPct: 40} },
		Platform:   platform.PC,
		CutoffIL:   200,
		SaturateIL: 1600,
		MaxIRPower: 0.5,
	}, st, nil)
	assert.Equal(t, board.PowerClient, fake.USBPowerMode(), "charging must be skipped on PC")

	rpm, _ := fake.GetFanSpeed()
	assert.Equal(t, uint16(40), rpm)
}
