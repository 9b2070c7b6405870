// Package board defines the interface to a single board (panda) USB session
// and the value types that describe its state. The transport (§6 of the
// spec this implements) is deliberately opaque to callers: the supervisor,
// the CAN loops and the board-state loop all depend only on this interface.
package board

import (
	"errors"
	"time"
)

// HardwareType is the discriminated hardware variant reported by a board.
type HardwareType uint8

const (
	HwUnknown HardwareType = iota
	HwWhite
	HwGrey
	HwBlack
	HwPedal
	HwUno
	HwDos
)

func (h HardwareType) String() string {
	switch h {
	case HwWhite:
		return "WHITE"
	case HwGrey:
		return "GREY"
	case HwBlack:
		return "BLACK"
	case HwPedal:
		return "PEDAL"
	case HwUno:
		return "UNO"
	case HwDos:
		return "DOS"
	default:
		return "UNKNOWN"
	}
}

// SafetyModel is the board-enforced CAN filtering policy.
type SafetyModel uint16

const (
	SafetySilent SafetyModel = iota
	SafetyNoOutput
	SafetyElm327
	SafetyHondaNidec
	// ... additional vehicle-specific models are opaque to this daemon; it
	// only ever needs to name NoOutput, Silent and Elm327 plus whatever
	// model/param pair the car-interface layer hands it.
)

// USBPowerMode controls host-charging behavior through the board's USB port.
type USBPowerMode uint8

const (
	PowerClient USBPowerMode = iota
	PowerCDP
	PowerDCP
)

// FaultStatus is the coarse health classification reported by a board.
type FaultStatus uint8

const (
	FaultStatusNone FaultStatus = iota
	FaultStatusFault
)

// HarnessStatus describes which side of the wiring harness is connected.
type HarnessStatus uint8

const (
	HarnessNotConnected HarnessStatus = iota
	HarnessNormal
	HarnessFlipped
)

// FaultKind enumerates the individual bits of the board's fault bitset, in
// the ascending numeric order the board-state loop must iterate (spec §4.4
// step 9).
type FaultKind uint8

const (
	FaultRelayMalfunction FaultKind = iota
	FaultUnusedInterruptHandled
	FaultCommunicationError
	FaultSpiError
	FaultRegisterDivergent
	FaultInterruptRateTick
)

var faultOrder = []FaultKind{
	FaultRelayMalfunction,
	FaultUnusedInterruptHandled,
	FaultCommunicationError,
	FaultSpiError,
	FaultRegisterDivergent,
	FaultInterruptRateTick,
}

// ActiveFaults materializes the fault bitset as a list of fault kinds, in
// ascending numeric order, matching spec §4.4 step 9.
func ActiveFaults(bits uint32) []FaultKind {
	var out []FaultKind
	for _, k := range faultOrder {
		if bits&(1<<uint(k)) != 0 {
			out = append(out, k)
		}
	}
	return out
}

// HealthSnapshot is the value type produced by polling a board (spec §3).
type HealthSnapshot struct {
	Uptime            time.Duration
	VoltageMillivolts uint32
	CurrentMilliamps  uint32
	IgnitionLine      bool
	IgnitionCAN       bool
	ControlsAllowed   bool
	GasInterceptor    bool
	CANRxErrs         uint32
	CANTxErrs         uint32
	CANFwdErrs        uint32
	CANGmlanErrs      uint32
	SafetyModel       SafetyModel
	SafetyParam       uint16
	USBPowerMode      USBPowerMode
	Fault             FaultStatus
	PowerSaveEnabled  bool
	HeartbeatLost     bool
	Harness           HarnessStatus
	FaultBits         uint32
}

// SendCanFrame is a single CAN frame queued for transmission to a board.
type SendCanFrame struct {
	Address uint32
	Bus     uint8
	Data    []byte
}

var (
	ErrNotConnected   = errors.New("board: not connected")
	ErrNoFirmware     = errors.New("board: firmware read failed")
	ErrNoSerial       = errors.New("board: serial read failed")
	ErrOpenFailed     = errors.New("board: open failed")
	ErrNoBoardsFound  = errors.New("board: no boards discovered")
)

// Board is the interface to a single established USB session with a board
// (spec §6). Exactly one of the two process-wide slots (main, aux) owns a
// given Board at a time.
type Board interface {
	// HwType is the hardware variant classified at open time.
	HwType() HardwareType
	// USBSerial is the board's USB serial string.
	USBSerial() string
	// Connected reports whether the USB session is still usable.
	Connected() bool
	// CommsHealthy reports whether recent I/O with the board has succeeded.
	CommsHealthy() bool
	// HasRTC reports whether this board exposes a real-time clock.
	HasRTC() bool

	SetUSBPowerMode(mode USBPowerMode) error
	SetSafetyModel(model SafetyModel, param uint16) error
	SetUnsafeMode(mode uint16) error
	SetPowerSaving(enabled bool) error
	SetLoopback(enabled bool) error

	GetRTC() (time.Time, error)
	SetRTC(t time.Time) error

	GetState() (HealthSnapshot, error)

	// CANReceive drains whatever CAN frames the board has buffered,
	// returning the opaque wire bytes the daemon republishes verbatim.
	// busShift is folded into the bus index the consumer observes, per
	// spec §4.2.
	CANReceive(busShift uint8) ([]byte, error)
	// CANSend forwards a decoded send-can batch to the board.
	CANSend(frames []SendCanFrame) error

	GetFanSpeed() (uint16, error)
	SetFanSpeed(rpm uint16) error
	SetIRPower(percent uint16) error

	SendHeartbeat() error

	// GetFirmwareVersion returns the raw 8-byte firmware signature.
	GetFirmwareVersion() ([8]byte, error)

	// Close releases the USB session. Safe to call more than once.
	Close() error
}
