package pigeon

import (
	"fmt"

	"github.com/tarm/serial"
)

// SerialPigeon connects to the GPS receiver over a direct serial device,
// the TICI platform path (spec §4.7). Grounded on the same tarm/serial
// idiom used elsewhere in the retrieval pack for direct device access.
type SerialPigeon struct {
	port *serial.Port
}

// OpenSerial opens the GPS receiver's serial device at the given path.
func OpenSerial(device string, baud int) (*SerialPigeon, error) {
	cfg := &serial.Config{Name: device, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("pigeon: open %s: %w", device, err)
	}
	return &SerialPigeon{port: port}, nil
}

func (p *SerialPigeon) Init() error {
	// Receiver cold-start sequence is device-specific and opaque here;
	// a real implementation writes the vendor init command set.
	return nil
}

func (p *SerialPigeon) Receive() ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := p.port.Read(buf)
	if err != nil {
		return nil, nil
	}
	return buf[:n], nil
}

func (p *SerialPigeon) Stop() error {
	return nil
}

func (p *SerialPigeon) SetPower(on bool) error {
	// Power control on the direct-serial path runs through a separate
	// GPIO/regulator the daemon does not own here; nothing to do.
	return nil
}

func (p *SerialPigeon) Close() error {
	return p.port.Close()
}

var _ Pigeon = (*SerialPigeon)(nil)
