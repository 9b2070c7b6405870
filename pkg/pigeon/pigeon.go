// Package pigeon implements the opaque GPS receiver interface (spec §6).
// The device protocol itself is out of scope; the daemon only needs to
// connect, init, pump bytes, and stop/power the receiver.
package pigeon

// Pigeon is the GPS device interface (spec §6).
type Pigeon interface {
	Init() error
	Receive() ([]byte, error)
	Stop() error
	SetPower(on bool) error
	Close() error
}

// Preamble bytes that begin a ublox-style GPS frame (spec §4.7 step 2).
var Preamble = [2]byte{0xB5, 0x62}

// ClassOffset is the byte offset of the message-class identifier within a
// frame, counted from the start of the preamble.
const ClassOffset = 2
