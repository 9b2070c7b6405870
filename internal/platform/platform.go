// Package platform probes the hardware platform the daemon is running on
// and applies the real-time scheduling policy spec §5 describes. The
// specific hardware-probe mechanism (device-tree, board ID file) is out of
// scope (spec §1); only the TICI/PC/OTHER discriminant matters to the rest
// of the daemon.
package platform

import (
	"os"
)

// Kind discriminates the platform, controlling sysfs vs. board-reported
// voltage/current (spec §4.4) and whether hardware control is exercised
// (spec §4.6).
type Kind uint8

const (
	Other Kind = iota
	PC
	TICI
)

func (k Kind) String() string {
	switch k {
	case PC:
		return "PC"
	case TICI:
		return "TICI"
	default:
		return "OTHER"
	}
}

const ticiMarkerFile = "/sys/firmware/devicetree/base/model-tici"

// Detect probes the running platform. Overridable via the BOARDD_PLATFORM
// environment variable for tests and non-hardware development.
func Detect() Kind {
	switch os.Getenv("BOARDD_PLATFORM") {
	case "TICI":
		return TICI
	case "PC":
		return PC
	case "OTHER":
		return Other
	}
	if _, err := os.Stat(ticiMarkerFile); err == nil {
		return TICI
	}
	if os.Getenv("STARTED") == "" && os.Getenv("DISPLAY") != "" {
		return PC
	}
	return Other
}
