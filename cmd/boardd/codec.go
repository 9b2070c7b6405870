package main

import (
	"encoding/json"
	"time"

	"github.com/brutella/can"

	"github.com/boardd/boardd/internal/boardstate"
	"github.com/boardd/boardd/internal/config"
	"github.com/boardd/boardd/internal/safetysetter"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/boardcan"
)

// The messaging fabric's wire schema is out of scope for this module
// (spec §6); these JSON-backed codecs are a standalone-deployment
// default so the daemon runs end to end without an external schema
// compiler. A production deployment wires the real fabric's encoders
// behind the same Decoder/Encoder seams instead.

type sendCanFrameWire struct {
	ID   uint32 `json:"id"`
	Bus  uint8  `json:"bus"`
	Data []byte `json:"data"`
}

type sendCanWire struct {
	Frames []sendCanFrameWire `json:"frames"`
}

func decodeSendCan(payload []byte, logMonoTime time.Time) (boardcan.SendCanBatch, error) {
	var wire sendCanWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return boardcan.SendCanBatch{}, err
	}
	frames := make([]boardcan.SendFrame, 0, len(wire.Frames))
	for _, f := range wire.Frames {
		var data [8]byte
		n := copy(data[:], f.Data)
		frames = append(frames, boardcan.SendFrame{
			Frame: can.Frame{ID: f.ID, Length: uint8(n), Data: data},
			Bus:   f.Bus,
		})
	}
	return boardcan.DecodeSendCan(logMonoTime, frames), nil
}

type pandaStateWire struct {
	Valid        bool     `json:"valid"`
	HwType       uint8    `json:"hwType"`
	IgnitionLine bool     `json:"ignitionLine"`
	FanRPM       uint16   `json:"fanRpm"`
	FaultBits    []uint8  `json:"faults"`
}

func encodePandaState(msg boardstate.PandaStateMessage) []byte {
	faults := make([]uint8, len(msg.ActiveFaults))
	for i, f := range msg.ActiveFaults {
		faults[i] = uint8(f)
	}
	wire := pandaStateWire{
		Valid:        msg.Valid,
		HwType:       uint8(msg.HwType),
		IgnitionLine: msg.IgnitionLine,
		FanRPM:       msg.FanRPM,
		FaultBits:    faults,
	}
	out, _ := json.Marshal(wire)
	return out
}

type carParamsWire struct {
	SafetyModel uint16 `json:"safetyModel"`
	SafetyParam uint16 `json:"safetyParam"`
}

func decodeCarParams(raw []byte) (safetysetter.CarParams, error) {
	var wire carParamsWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return safetysetter.CarParams{}, err
	}
	return safetysetter.CarParams{
		SafetyModel: board.SafetyModel(wire.SafetyModel),
		SafetyParam: wire.SafetyParam,
	}, nil
}

func gpsTimeouts(cfg config.Config) map[byte]time.Duration {
	out := make(map[byte]time.Duration, len(cfg.GPSClassTimeouts))
	for class, seconds := range cfg.GPSClassTimeouts {
		out[class] = time.Duration(seconds * float64(time.Second))
	}
	return out
}
