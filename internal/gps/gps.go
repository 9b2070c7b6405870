// Package gps implements the GPS pump loop (spec §4.7): it connects to
// the receiver (direct serial on TICI, tunneled through the main board
// elsewhere), follows ignition edges to init/stop the device, scans
// incoming bytes for ublox frames to track per-class liveness, and
// republishes the raw stream. Grounded on the teacher's pkg/pdo
// producer/consumer timestamp bookkeeping (samsamfire-gocanopen
// pkg/pdo), generalized from per-PDO last-seen tracking to per-message-
// class GPS liveness tracking.
package gps

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/platform"
	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/pigeon"
	"github.com/boardd/boardd/pkg/pubsub"
)

// Tick is the GPS pump cadence (spec §4.7: "100 Hz loop").
const Tick = 10 * time.Millisecond

// StartupGrace is how long after a rising ignition edge the loop holds
// off raising timeout warnings, giving the receiver time to lock (spec
// §4.7).
const StartupGrace = 10 * time.Second

const ubloxRawChannel = "ubloxRaw"

const serialDevice = "/dev/ttyHS0"
const serialBaud = 460800

// Connector opens the platform-appropriate GPS transport: direct serial
// on TICI, tunneled through the main board otherwise (spec §4.7).
type Connector func(plat platform.Kind, main board.Board) (pigeon.Pigeon, error)

// DefaultConnector implements the platform choice spec §4.7 describes.
func DefaultConnector(plat platform.Kind, main board.Board) (pigeon.Pigeon, error) {
	if plat == platform.TICI {
		return pigeon.OpenSerial(serialDevice, serialBaud)
	}
	return pigeon.OpenBoardTunnel(main), nil
}

// Options configures a single Run of the GPS loop.
type Options struct {
	Pub       pubsub.Publisher
	Connect   Connector
	Platform  platform.Kind
	Timeouts  map[byte]time.Duration
	// AuxIgnitionOn reports the aux board's ignition line, used to gate
	// timeout warnings so a parked aux board doesn't spam them (spec §4.7,
	// §8 scenario: "timeout warning only when both ignitions true"). Nil
	// means there is no aux board, in which case main's ignition state
	// alone gates warnings.
	AuxIgnitionOn func() bool
	Logger        *slog.Logger
}

type loopState struct {
	dev           pigeon.Pigeon
	lastIgnition  bool
	ignitionSince time.Time
	lastSeen      map[byte]time.Time
	needsReset    bool
}

// Run executes the GPS loop until ctx is canceled or exit is requested
// (spec §4.7).
func Run(ctx context.Context, sup *supervisor.Supervisor, opts *Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connect := opts.Connect
	if connect == nil {
		connect = DefaultConnector
	}

	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	st := loopState{lastSeen: make(map[byte]time.Time)}
	defer func() {
		if st.dev != nil {
			st.dev.Close()
		}
	}()

	for {
		if sup.ExitRequested() {
			return
		}

		ignition := sup.Ignition()
		if ignition && (!st.lastIgnition || st.needsReset) {
			if err := onRisingEdge(&st, sup, opts, connect, logger); err != nil {
				logger.Warn("gps connect/init failed", "err", err)
			} else {
				st.needsReset = false
			}
		}
		if !ignition && st.lastIgnition {
			onFallingEdge(&st, logger)
		}
		st.lastIgnition = ignition

		if st.dev != nil {
			pump(&st, opts, ignition, logger)
			if ignition {
				checkTimeouts(&st, opts, logger)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func onRisingEdge(st *loopState, sup *supervisor.Supervisor, opts *Options, connect Connector, logger *slog.Logger) error {
	dev, err := connect(opts.Platform, sup.Main())
	if err != nil {
		return err
	}
	if err := dev.SetPower(true); err != nil {
		logger.Warn("gps power-on failed", "err", err)
	}
	if err := dev.Init(); err != nil {
		dev.Close()
		return err
	}
	st.dev = dev
	st.ignitionSince = time.Now()
	st.lastSeen = make(map[byte]time.Time)
	return nil
}

func onFallingEdge(st *loopState, logger *slog.Logger) {
	if st.dev == nil {
		return
	}
	if err := st.dev.Stop(); err != nil {
		logger.Warn("gps stop failed", "err", err)
	}
	if err := st.dev.SetPower(false); err != nil {
		logger.Warn("gps power-off failed", "err", err)
	}
	st.dev.Close()
	st.dev = nil
}

func pump(st *loopState, opts *Options, ignition bool, logger *slog.Logger) {
	buf, err := st.dev.Receive()
	if err != nil {
		logger.Warn("gps receive failed", "err", err)
		return
	}
	if len(buf) == 0 {
		return
	}

	// Spec §4.7 steps 2 and 4: the preamble/class scan and the
	// leading-null-byte reset hook only apply while ignition is on.
	if ignition {
		if len(buf) > 0 && buf[0] == 0 {
			st.needsReset = true
		}
		now := time.Now()
		for _, cls := range scanClasses(buf) {
			st.lastSeen[cls] = now
		}
	}

	if opts.Pub != nil {
		if err := opts.Pub.Publish(ubloxRawChannel, buf); err != nil {
			logger.Warn("gps publish failed", "err", err)
		}
	}
}

// scanClasses finds every ublox-preamble frame start in buf and returns
// the message-class byte at each (spec §4.7 step 2).
func scanClasses(buf []byte) []byte {
	var classes []byte
	for i := 0; i+pigeon.ClassOffset < len(buf); i++ {
		if buf[i] == pigeon.Preamble[0] && buf[i+1] == pigeon.Preamble[1] {
			classes = append(classes, buf[i+pigeon.ClassOffset])
		}
	}
	return classes
}

// checkTimeouts logs a warning for each message class that hasn't been
// seen within its configured timeout, gated by the startup grace period
// and by both boards' ignition state (spec §4.7).
func checkTimeouts(st *loopState, opts *Options, logger *slog.Logger) {
	if time.Since(st.ignitionSince) < StartupGrace {
		return
	}
	if opts.AuxIgnitionOn != nil && !opts.AuxIgnitionOn() {
		return
	}

	now := time.Now()
	for class, timeout := range opts.Timeouts {
		seen, ok := st.lastSeen[class]
		if !ok || now.Sub(seen) > timeout {
			logger.Warn("gps message class timed out", "class", class, "timeout", timeout)
			needReset(class, logger)
		}
	}
}

// needReset is a log-only hook (spec §4.7 note): a real deployment may
// wire this to a receiver reset command, but no such command exists in
// scope here, so it only records the observation.
func needReset(class byte, logger *slog.Logger) {
	logger.Debug("gps class would trigger reset", "class", class)
}
