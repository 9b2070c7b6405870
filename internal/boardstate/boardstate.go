// Package boardstate implements the board-state loop (spec §4.4): the 2 Hz
// supervisor that polls board health, derives ignition, drives safety-mode
// and power-save transitions, spawns the safety-setter, writes the RTC
// back, and publishes pandaState messages. Grounded on the teacher's
// pkg/nmt.NMT state machine (state changes trigger a heartbeat, a timer
// governs periodic re-announcement) generalized from the CANopen NMT
// states to the ignition/safety-model state this daemon tracks.
package boardstate

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/platform"
	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/paramstore"
	"github.com/boardd/boardd/pkg/pubsub"
)

// Tick is the board-state loop cadence (spec §4.4: "2 Hz").
const Tick = 500 * time.Millisecond

// KeepAliveTick is the cadence of the pre-main keep-alive message (spec
// §4.4: "every 500 ms").
const KeepAliveTick = 500 * time.Millisecond

// RTCWriteBackThreshold is the clock drift beyond which the board RTC is
// rewritten from host time (spec §4.4 step 8, §8 boundary behavior).
const RTCWriteBackThreshold = 1100 * time.Millisecond

const pandaStateChannel = "pandaState"

// SafetySetterLauncher starts the safety-setter task, detached, on a
// rising ignition edge. The real implementation lives in
// internal/safetysetter; it is injected here rather than imported, so
// boardstate does not depend on safetysetter and tests can pass a stub.
type SafetySetterLauncher func(ctx context.Context)

// HostClock abstracts host wall-clock validity checks and reads. It shares
// Valid with connect.HostClock but reads the clock (Now) instead of setting
// it.
type HostClock interface {
	Valid() bool
	Now() time.Time
}

// PandaStateMessage is the published board-state message (spec §4.4 step
// 9). Encoding to the pub/sub wire format is the messaging fabric's job
// (spec §6); this is the value the loop produces.
type PandaStateMessage struct {
	Valid        bool
	HwType       board.HardwareType
	IgnitionLine bool
	FanRPM       uint16
	ActiveFaults []board.FaultKind
	Health       board.HealthSnapshot
}

// Encoder serializes a PandaStateMessage to the opaque wire bytes the
// pub/sub fabric publishes.
type Encoder func(PandaStateMessage) []byte

// Options configures a single Run of the board-state loop.
type Options struct {
	Pub                pubsub.Publisher
	Params             paramstore.ParamStore
	Clock              HostClock
	Platform           platform.Kind
	LaunchSafetySetter SafetySetterLauncher
	Encode             Encoder
	Logger             *slog.Logger

	// SimulatedIgnitionOn forces ignition on regardless of the polled board
	// state (spec §6 "STARTED" / "SimulateIgnitionOn forces ignition_line=1
	// in the published board state"). It is OR'd into both the derived
	// ignition and the published IgnitionLine every tick, so it survives
	// for the life of the process rather than only the first tick.
	SimulatedIgnitionOn bool
}

// loopState tracks the values that must persist across ticks.
type loopState struct {
	lastIgnition  bool
	noIgnitionCnt uint64
}

// Run executes the board-state loop until ctx is canceled or exit is
// requested (spec §4.4). Before main exists it emits a keep-alive message
// every 500ms; once main exists, it runs the full per-tick sequence.
func Run(ctx context.Context, sup *supervisor.Supervisor, opts *Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	encode := opts.Encode
	if encode == nil {
		encode = func(PandaStateMessage) []byte { return nil }
	}

	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	var st loopState

	for {
		if sup.ExitRequested() {
			return
		}

		main := sup.Main()
		if main == nil {
			publishKeepAlive(opts.Pub, encode)
		} else {
			tick(ctx, sup, main, opts, &st, logger)
			if !main.Connected() {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func publishKeepAlive(pub pubsub.Publisher, encode Encoder) {
	if pub == nil {
		return
	}
	msg := encode(PandaStateMessage{Valid: false, HwType: board.HwUnknown})
	_ = pub.Publish(pandaStateChannel, msg)
}

func tick(ctx context.Context, sup *supervisor.Supervisor, main board.Board, opts *Options, st *loopState, logger *slog.Logger) {
	mainHealth, err := pollHealth(main, opts, logger)
	if err != nil {
		logger.Warn("board poll failed", "serial", main.USBSerial(), "err", err)
	}

	aux := sup.Aux()
	var auxHealth board.HealthSnapshot
	if aux != nil {
		auxHealth, _ = pollHealth(aux, opts, logger)
	}

	// CAN-liveness fallback (spec §4.4 step 2): SILENT is never a useful
	// observed state, coerce it back to NO_OUTPUT immediately.
	coerceSilent(main, mainHealth)
	if aux != nil {
		coerceSilent(aux, auxHealth)
	}

	// Ignition derivation (spec §4.4 step 3): driven by whichever board's
	// mainShift is 0.
	mainShift, _ := sup.Shifts()
	var ignitionSource board.HealthSnapshot
	if mainShift == 0 {
		ignitionSource = mainHealth
	} else if aux != nil {
		ignitionSource = auxHealth
	}
	ignition := ignitionSource.IgnitionLine || ignitionSource.IgnitionCAN || opts.SimulatedIgnitionOn
	sup.SetIgnition(ignition)
	if !ignition {
		st.noIgnitionCnt++
	} else {
		st.noIgnitionCnt = 0
	}

	// Power-save (spec §4.4 step 4).
	desiredPowerSave := !ignition
	if mainHealth.PowerSaveEnabled != desiredPowerSave {
		_ = main.SetPowerSaving(desiredPowerSave)
		if aux != nil {
			_ = aux.SetPowerSaving(desiredPowerSave)
		}
	}

	// Safety-off-when-parked (spec §4.4 step 5).
	if !ignition && mainHealth.SafetyModel != board.SafetyNoOutput {
		_ = main.SetSafetyModel(board.SafetyNoOutput, 0)
	}
	// Open question resolution (spec §9 / SPEC_FULL.md §E): mirror main
	// into aux on shutdown, preserving the literal source condition.
	if aux != nil && !ignition && mainHealth.SafetyModel != board.SafetyNoOutput {
		_ = aux.SetSafetyModel(board.SafetyNoOutput, 0)
	}

	// Ignition edges (spec §4.4 steps 6-7).
	if ignition && !st.lastIgnition {
		if opts.Params != nil {
			_ = opts.Params.ClearAll(paramstore.TagClearOnIgnitionOn)
		}
		if sup.TryStartSafetySetter() {
			if opts.LaunchSafetySetter != nil {
				opts.LaunchSafetySetter(ctx)
			}
		}
	}
	if !ignition && st.lastIgnition {
		if opts.Params != nil {
			_ = opts.Params.ClearAll(paramstore.TagClearOnIgnitionOff)
		}
	}
	st.lastIgnition = ignition

	// RTC write-back (spec §4.4 step 8, §8 boundary behavior).
	maybeWriteRTC(main, opts, st, ignition)

	// Publish board-state (spec §4.4 step 9).
	publishState(opts, main, mainHealth)

	// Heartbeat (spec §4.4 step 10).
	_ = main.SendHeartbeat()
	if aux != nil {
		_ = aux.SendHeartbeat()
	}
}

func pollHealth(b board.Board, opts *Options, logger *slog.Logger) (board.HealthSnapshot, error) {
	health, err := b.GetState()
	if err != nil {
		return health, err
	}
	if opts.Platform == platform.TICI {
		mv, ma, elapsed, sfErr := platform.ReadVoltageCurrent()
		if sfErr == nil {
			health.VoltageMillivolts = mv
			health.CurrentMilliamps = ma
		}
		if platform.SlowRead(elapsed) {
			logger.Warn("sysfs read slow", "elapsed", elapsed)
		}
	}
	return health, nil
}

// coerceSilent implements spec §4.4 step 2 / §8 invariant: "if a board
// reports SILENT, the next command it receives is NO_OUTPUT".
func coerceSilent(b board.Board, health board.HealthSnapshot) {
	if health.SafetyModel == board.SafetySilent {
		_ = b.SetSafetyModel(board.SafetyNoOutput, 0)
	}
}

func maybeWriteRTC(main board.Board, opts *Options, st *loopState, ignition bool) {
	if main.HasRTC() && !ignition && st.noIgnitionCnt%120 == 1 && opts.Clock != nil && opts.Clock.Valid() {
		rtc, err := main.GetRTC()
		if err != nil {
			return
		}
		host := opts.Clock.Now()
		if absDuration(host.Sub(rtc)) > RTCWriteBackThreshold {
			_ = main.SetRTC(host)
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func publishState(opts *Options, main board.Board, health board.HealthSnapshot) {
	if opts.Pub == nil {
		return
	}
	fanRPM, _ := main.GetFanSpeed()
	msg := PandaStateMessage{
		Valid:        main.CommsHealthy(),
		HwType:       main.HwType(),
		IgnitionLine: health.IgnitionLine || health.IgnitionCAN || opts.SimulatedIgnitionOn,
		FanRPM:       fanRPM,
		ActiveFaults: board.ActiveFaults(health.FaultBits),
		Health:       health,
	}
	_ = opts.Pub.Publish(pandaStateChannel, opts.Encode(msg))
}
