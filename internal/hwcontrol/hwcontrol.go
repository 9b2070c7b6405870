// Package hwcontrol implements the hardware-control loop (spec §4.6):
// host-charging toggling, fan speed commands and the IR illuminator
// power curve. Grounded on the teacher's pkg/emergency producer loop
// (periodic re-send of a derived value with a keepalive cadence),
// generalized from EMCY re-transmission to fan/IR command re-transmission.
package hwcontrol

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/boardd/boardd/internal/platform"
	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
)

// Tick is the hardware-control loop cadence, matching the IR low-pass
// filter's sample period (spec §4.6: "dt = 0.05").
const Tick = 50 * time.Millisecond

// KeepAliveIterations forces a fan/IR command re-send even when the
// commanded value hasn't changed (spec §4.6).
const KeepAliveIterations = 100

// MinSendDelta forces an immediate re-send when the commanded IR power
// jumps by at least this many percentage points, bypassing the
// keepalive cadence (spec §4.6).
const MinSendDelta = 50

// CameraFrameTimeout is how long the loop waits without a camera frame
// before forcing IR power to zero (spec §4.6).
const CameraFrameTimeout = time.Second

// lowPassTau and lowPassDt parameterize the TICI-only IR smoothing
// filter (spec §4.6: "time constant 30.0, sample period 0.05").
const (
	lowPassTau = 30.0
	lowPassDt  = 0.05
)

// DeviceState is the subset of system state this loop reacts to, fed in
// by whatever process owns thermal/charging policy (spec §1 Non-goals:
// that policy itself is out of scope).
type DeviceState struct {
	ShouldCharge   bool
	FanSpeedPct    uint8
	CameraFrameAge time.Duration
	IntegLines     float64
}

// StateSource supplies the latest DeviceState each tick.
type StateSource func() DeviceState

// IRCurve maps an integrated-exposure-lines reading to a 0-100 IR power
// percentage via the piecewise-linear curve spec §4.6 describes:
// minPower*100 at or below cutoffIL, linearly ramping to maxPower*100 at
// saturateIL, flat above it.
func IRCurve(integLines, cutoffIL, saturateIL, minPower, maxPower float64) float64 {
	if integLines <= cutoffIL {
		return minPower * 100
	}
	if integLines >= saturateIL {
		return maxPower * 100
	}
	frac := (integLines - cutoffIL) / (saturateIL - cutoffIL)
	return (minPower + frac*(maxPower-minPower)) * 100
}

// Options configures a single Run of the hardware-control loop.
type Options struct {
	State       StateSource
	Platform    platform.Kind
	CutoffIL    float64
	SaturateIL  float64
	MinIRPower  float64
	MaxIRPower  float64
	Logger      *slog.Logger
}

type loopState struct {
	iteration          int
	lastFanPct         uint8
	fanSent            bool
	lastIRSent         float64
	irSent             bool
	filteredIntegLines float64
	lastChargeMode     board.USBPowerMode
	chargeModeSent     bool
}

// Run executes the hardware-control loop until ctx is canceled or exit is
// requested (spec §4.6).
func Run(ctx context.Context, sup *supervisor.Supervisor, opts *Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	var st loopState

	for {
		if sup.ExitRequested() {
			return
		}
		if main := sup.Main(); main != nil {
			tick(main, opts, &st, logger)
		}

		select {
		case <-ticker.C:
			st.iteration++
		case <-ctx.Done():
			return
		}
	}
}

func tick(main board.Board, opts *Options, st *loopState, logger *slog.Logger) {
	state := opts.State()

	if opts.Platform != platform.PC {
		sendChargeMode(main, chargeMode(state.ShouldCharge), st, logger)
	}

	if main.HwType() == board.HwUno || main.HwType() == board.HwDos {
		sendFan(main, state.FanSpeedPct, st, logger)
	}

	sendIR(main, state, opts, st, logger)
}

func chargeMode(shouldCharge bool) board.USBPowerMode {
	if shouldCharge {
		return board.PowerCDP
	}
	return board.PowerClient
}

// sendChargeMode commands the USB power mode only on transition (spec
// §4.6: "on transition, command USB power mode to CLIENT/CDP"), mirroring
// the change-gated send pattern sendFan/sendIR already use.
func sendChargeMode(main board.Board, mode board.USBPowerMode, st *loopState, logger *slog.Logger) {
	if st.chargeModeSent && mode == st.lastChargeMode {
		return
	}
	if err := main.SetUSBPowerMode(mode); err != nil {
		logger.Warn("failed to set charge mode", "err", err)
		return
	}
	st.lastChargeMode = mode
	st.chargeModeSent = true
}

func sendFan(main board.Board, pct uint8, st *loopState, logger *slog.Logger) {
	if st.fanSent && pct == st.lastFanPct && st.iteration%KeepAliveIterations != 0 {
		return
	}
	if err := main.SetFanSpeed(uint16(pct)); err != nil {
		logger.Warn("failed to set fan speed", "err", err)
		return
	}
	st.lastFanPct = pct
	st.fanSent = true
}

func sendIR(main board.Board, state DeviceState, opts *Options, st *loopState, logger *slog.Logger) {
	integLines := state.IntegLines

	if opts.Platform == platform.TICI {
		alpha := lowPassDt / (lowPassTau + lowPassDt)
		st.filteredIntegLines += alpha * (integLines - st.filteredIntegLines)
		integLines = st.filteredIntegLines
	}

	power := IRCurve(integLines, opts.CutoffIL, opts.SaturateIL, opts.MinIRPower, opts.MaxIRPower)

	if state.CameraFrameAge >= CameraFrameTimeout {
		power = 0
	}

	delta := math.Abs(power - st.lastIRSent)
	shouldSend := !st.irSent || power != st.lastIRSent
	forceSend := st.iteration%KeepAliveIterations == 0 || delta >= MinSendDelta
	if !shouldSend && !forceSend {
		return
	}

	if err := main.SetIRPower(uint16(math.Round(power))); err != nil {
		logger.Warn("failed to set IR power", "err", err)
		return
	}
	st.lastIRSent = power
	st.irSent = true
}
