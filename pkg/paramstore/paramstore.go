// Package paramstore defines the key/value parameter store interface
// (spec §6) used for cross-process configuration and state exchange:
// firmware identity, the VIN, readiness flags and the decoded car params.
package paramstore

// Well-known keys (spec §6).
const (
	KeyCarVin            = "CarVin"
	KeyCarParams          = "CarParams"
	KeyControlsReady      = "ControlsReady"
	KeyPandaFirmware      = "PandaFirmware"
	KeyPandaFirmwareHex   = "PandaFirmwareHex"
	KeyPandaDongleId      = "PandaDongleId"
)

// Clear tags (spec §3, §4.4).
const (
	TagClearOnIgnitionOn  = "CLEAR_ON_IGNITION_ON"
	TagClearOnIgnitionOff = "CLEAR_ON_IGNITION_OFF"
)

// ParamStore is the key/value parameter store (spec §6).
type ParamStore interface {
	Get(key string) ([]byte, error)
	GetBool(key string) (bool, error)
	Put(key string, value []byte) error
	ClearAll(tag string) error
}
