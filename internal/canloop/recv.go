// Package canloop implements the CAN receive and send loops (spec §4.2,
// §4.3). Grounded on the teacher's fixed-cadence background-processing
// goroutine (cmd/canopen/main.go's backgroundPeriod loop) generalized from
// a 100 Hz SYNC/PDO pump to a 100 Hz CAN-frame pump.
package canloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/pubsub"
)

// Tick is the fixed CAN receive cadence (spec §4.2: "100 Hz tick").
const Tick = 10 * time.Millisecond

const canChannel = "can"

// Recv runs the CAN receive loop until ctx is canceled, exitRequested is
// set, or main disconnects (spec §4.2). Each tick drains main's CAN
// buffer, publishes it verbatim, then does the same for aux if present.
func Recv(ctx context.Context, sup *supervisor.Supervisor, pub pubsub.Publisher, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	nextTick := time.Now()
	for {
		if sup.ExitRequested() {
			return
		}
		main := sup.Main()
		if main == nil || !main.Connected() {
			return
		}

		now := time.Now()
		if now.After(nextTick) {
			if sup.Ignition() {
				logger.Warn("can recv tick drift", "behind", now.Sub(nextTick))
			}
			nextTick = now
		}

		mainShift, auxShift := sup.Shifts()

		drainAndPublish(main, mainShift, pub, logger)
		if aux := sup.Aux(); aux != nil {
			drainAndPublish(aux, auxShift, pub, logger)
		}

		nextTick = nextTick.Add(Tick)
		sleepUntil(ctx, nextTick)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func drainAndPublish(b board.Board, shift uint8, pub pubsub.Publisher, logger *slog.Logger) {
	buf, err := b.CANReceive(shift)
	if err != nil {
		logger.Warn("can receive failed", "serial", b.USBSerial(), "err", err)
		return
	}
	if len(buf) == 0 {
		return
	}
	if err := pub.Publish(canChannel, buf); err != nil {
		logger.Warn("can publish failed", "err", err)
	}
}

func sleepUntil(ctx context.Context, t time.Time) {
	d := time.Until(t)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
