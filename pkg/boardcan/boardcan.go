// Package boardcan defines the CAN envelope types exchanged between the
// daemon and the pub/sub fabric (spec §3 "CAN envelope"). Outbound traffic
// stays an opaque byte buffer; inbound send-can commands are decoded enough
// to check staleness and route to a board, using brutella/can's Frame type
// for the individual CAN frames in a batch.
package boardcan

import (
	"time"

	"github.com/brutella/can"
)

// StaleAfter is the age at or beyond which a send-can batch is dropped rather
// than delivered, per spec §3 invariants and §4.3.
const StaleAfter = 1 * time.Second

// SendFrame pairs a decoded CAN frame with the wire-specified bus index it
// targets. A send-can batch is routed as a whole to main or aux (spec
// §4.3), but each frame inside the batch still carries its own bus index
// for the board's CANSend call (spec §6 "send_can(send_can_batch)");
// brutella/can's Frame type has no bus field, so it travels alongside.
type SendFrame struct {
	Frame can.Frame
	Bus   uint8
}

// SendCanBatch is the decoded form of an inbound "sendcan" pub/sub message:
// a monotonic log timestamp plus a batch of frames to push to a board.
type SendCanBatch struct {
	LogMonoTime time.Time
	Frames      []SendFrame
}

// Stale reports whether the batch is at least StaleAfter old, measured
// against now (the monotonic clock reading at evaluation time).
func (b SendCanBatch) Stale(now time.Time) bool {
	return now.Sub(b.LogMonoTime) >= StaleAfter
}

// DecodeSendCan assembles a SendCanBatch from a sendcan message's log
// timestamp and its already-decoded frames. It does not parse the wire
// payload: the wire format is owned by the messaging fabric (spec §6), and
// the caller's decoder (cmd/boardd's decodeSendCan) extracts the frames.
func DecodeSendCan(logMonoTime time.Time, frames []SendFrame) SendCanBatch {
	return SendCanBatch{LogMonoTime: logMonoTime, Frames: frames}
}

// FirmwareHex renders an 8-byte firmware signature as lowercase hex, the
// mirror value written to the parameter store alongside the raw bytes
// (spec §4.1, §8 round-trip law).
func FirmwareHex(sig [8]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, 16)
	for _, b := range sig {
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(out)
}
