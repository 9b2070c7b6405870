package canloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/boardcan"
	"github.com/boardd/boardd/pkg/pubsub"
)

const sendcanChannel = "sendcan"
const subscribeTimeout = 100 * time.Millisecond

// Decoder turns a raw pub/sub payload into a SendCanBatch. The wire format
// is owned by the messaging fabric (spec §6); this indirection lets tests
// supply a trivial decoder without a real schema compiler.
type Decoder func(payload []byte, logMonoTime time.Time) (boardcan.SendCanBatch, error)

// Send runs the CAN send loop until ctx is canceled or exitRequested is
// set (spec §4.3). It blocks on the sendcan subscriber with a 100ms
// timeout; stale batches (log time older than 1s) are discarded.
func Send(ctx context.Context, sup *supervisor.Supervisor, sub pubsub.Subscriber, decode Decoder, fakeSend bool, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		if sup.ExitRequested() {
			return
		}

		msg, err := sub.Receive(ctx, sendcanChannel, subscribeTimeout)
		if err != nil {
			// Interruption is treated as a shutdown signal (spec §4.3,
			// §7 "Subscriber interrupted").
			sup.RequestExit()
			return
		}
		if msg.Data == nil {
			continue // timeout, no message this tick
		}

		batch, err := decode(msg.Data, msg.LogMonoTime)
		if err != nil {
			logger.Warn("sendcan decode failed", "err", err)
			continue
		}

		if batch.Stale(time.Now()) {
			continue // spec §3/§4.3: silently dropped
		}

		target := targetBoard(sup)
		if target == nil {
			continue
		}
		if fakeSend {
			continue
		}
		if err := target.CANSend(toSendFrames(batch.Frames)); err != nil {
			logger.Warn("can send failed", "err", err)
		}
	}
}

// targetBoard routes a fresh send-can batch to main if mainShift==0, else
// to aux (spec §4.3).
func targetBoard(sup *supervisor.Supervisor) board.Board {
	mainShift, _ := sup.Shifts()
	if mainShift == 0 {
		return sup.Main()
	}
	return sup.Aux()
}

func toSendFrames(frames []boardcan.SendFrame) []board.SendCanFrame {
	out := make([]board.SendCanFrame, 0, len(frames))
	for _, sf := range frames {
		out = append(out, board.SendCanFrame{
			Address: sf.Frame.ID,
			Bus:     sf.Bus,
			Data:    append([]byte(nil), sf.Frame.Data[:sf.Frame.Length]...),
		})
	}
	return out
}
