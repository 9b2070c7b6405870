package board

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB vendor/product identity and endpoint numbers for the board, matching
// the panda-class device family this daemon targets.
const (
	usbVendorID    gousb.ID = 0xbbaa
	usbProductID   gousb.ID = 0xddcc
	endpointBulkIn          = 1
	endpointBulkOut         = 2
	ctrlTimeout             = 500 * time.Millisecond
	bulkTimeout             = 100 * time.Millisecond
)

// usbBoard is the production Board implementation, backed by gousb (libusb).
type usbBoard struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
	serial string
	hwType HardwareType

	connected    bool
	commsHealthy bool
	hasRTC       bool
}

// List enumerates the USB serial numbers of every attached board, matching
// spec §6 Board.list().
func List() ([]string, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var serials []string
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == usbVendorID && desc.Product == usbProductID
	})
	if err != nil {
		return nil, fmt.Errorf("board: enumerate: %w", err)
	}
	for _, d := range devices {
		serial, err := d.SerialNumber()
		d.Close()
		if err != nil {
			continue
		}
		serials = append(serials, serial)
	}
	if len(serials) == 0 {
		return nil, ErrNoBoardsFound
	}
	return serials, nil
}

// Open opens the board with the given USB serial and classifies its
// hardware type. On any failure the partially opened session is released
// and an error is returned, per spec §4.1 failure semantics (drop and
// retry on the next discovery tick).
func Open(serial string) (Board, error) {
	ctx := gousb.NewContext()

	dev, err := openBySerial(ctx, serial)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrOpenFailed
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: config: %v", ErrOpenFailed, err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: claim interface: %v", ErrOpenFailed, err)
	}
	epIn, err := intf.InEndpoint(endpointBulkIn)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: in endpoint: %v", ErrOpenFailed, err)
	}
	epOut, err := intf.OutEndpoint(endpointBulkOut)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: out endpoint: %v", ErrOpenFailed, err)
	}

	b := &usbBoard{
		ctx: ctx, dev: dev, cfg: cfg, intf: intf, epIn: epIn, epOut: epOut,
		connected: true,
	}

	gotSerial, err := dev.SerialNumber()
	if err != nil || gotSerial == "" {
		b.Close()
		return nil, ErrNoSerial
	}
	b.serial = gotSerial

	hwType, hasRTC, err := b.classify()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.hwType = hwType
	b.hasRTC = hasRTC
	b.commsHealthy = true

	return b, nil
}

// openBySerial opens every attached board and keeps the one whose USB
// serial matches, closing the rest. gousb's device-descriptor filter can't
// see the serial string (it lives in a string descriptor, readable only on
// an opened device), so the match has to happen after open (spec §6:
// "open(serial)" selects the board list() previously reported).
func openBySerial(ctx *gousb.Context, serial string) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == usbVendorID && desc.Product == usbProductID
	})
	if err != nil {
		return nil, err
	}

	var found *gousb.Device
	for _, d := range devices {
		if found != nil {
			d.Close()
			continue
		}
		got, err := d.SerialNumber()
		if err != nil || got != serial {
			d.Close()
			continue
		}
		found = d
	}
	if found == nil {
		return nil, ErrNoSerial
	}
	return found, nil
}

// classify reads the hardware identity control transfer and maps it to a
// HardwareType. Real panda devices report this over a vendor control
// request; the exact request numbers are firmware-internal and not
// meaningful to the rest of the daemon.
func (b *usbBoard) classify() (HardwareType, bool, error) {
	buf := make([]byte, 1)
	_, err := b.dev.Control(gousb.ControlIn|gousb.ControlVendor, 0xc1, 0, 0, buf)
	if err != nil {
		return HwUnknown, false, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	hw := HardwareType(buf[0])
	hasRTC := hw == HwDos
	return hw, hasRTC, nil
}

func (b *usbBoard) HwType() HardwareType    { return b.hwType }
func (b *usbBoard) USBSerial() string       { return b.serial }
func (b *usbBoard) Connected() bool         { return b.connected }
func (b *usbBoard) CommsHealthy() bool      { return b.commsHealthy }
func (b *usbBoard) HasRTC() bool            { return b.hasRTC }

func (b *usbBoard) control(request uint8, value, index uint16, data []byte) error {
	_, err := b.dev.Control(gousb.ControlOut|gousb.ControlVendor, request, value, index, data)
	if err != nil {
		b.commsHealthy = false
		b.connected = false
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (b *usbBoard) SetUSBPowerMode(mode USBPowerMode) error {
	return b.control(0xe6, uint16(mode), 0, nil)
}

func (b *usbBoard) SetSafetyModel(model SafetyModel, param uint16) error {
	return b.control(0xdc, uint16(model), param, nil)
}

func (b *usbBoard) SetUnsafeMode(mode uint16) error {
	return b.control(0xdf, mode, 0, nil)
}

func (b *usbBoard) SetPowerSaving(enabled bool) error {
	return b.control(0xe7, boolToU16(enabled), 0, nil)
}

func (b *usbBoard) SetLoopback(enabled bool) error {
	return b.control(0xe5, boolToU16(enabled), 0, nil)
}

func (b *usbBoard) GetRTC() (time.Time, error) {
	buf := make([]byte, 8)
	_, err := b.dev.Control(gousb.ControlIn|gousb.ControlVendor, 0xa0, 0, 0, buf)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: rtc: %v", ErrNotConnected, err)
	}
	sec := int64(binary.LittleEndian.Uint64(buf))
	return time.Unix(sec, 0).UTC(), nil
}

func (b *usbBoard) SetRTC(t time.Time) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(t.UTC().Unix()))
	return b.control(0xa1, 0, 0, buf)
}

func (b *usbBoard) GetState() (HealthSnapshot, error) {
	buf := make([]byte, 64)
	_, err := b.dev.Control(gousb.ControlIn|gousb.ControlVendor, 0xd2, 0, 0, buf)
	if err != nil {
		b.commsHealthy = false
		return HealthSnapshot{}, fmt.Errorf("%w: state: %v", ErrNotConnected, err)
	}
	b.commsHealthy = true
	return decodeHealthSnapshot(buf), nil
}

// decodeHealthSnapshot unpacks the board's fixed health-report wire format
// into a HealthSnapshot. Field widths/order mirror the struct field order;
// exact offsets are firmware-internal.
func decodeHealthSnapshot(buf []byte) HealthSnapshot {
	le := binary.LittleEndian
	return HealthSnapshot{
		Uptime:            time.Duration(le.Uint32(buf[0:4])) * time.Second,
		VoltageMillivolts: le.Uint32(buf[4:8]),
		CurrentMilliamps:  le.Uint32(buf[8:12]),
		IgnitionLine:      buf[12]&0x1 != 0,
		IgnitionCAN:       buf[12]&0x2 != 0,
		ControlsAllowed:   buf[12]&0x4 != 0,
		GasInterceptor:    buf[12]&0x8 != 0,
		CANRxErrs:         le.Uint32(buf[16:20]),
		CANTxErrs:         le.Uint32(buf[20:24]),
		CANFwdErrs:        le.Uint32(buf[24:28]),
		CANGmlanErrs:      le.Uint32(buf[28:32]),
		SafetyModel:       SafetyModel(le.Uint16(buf[32:34])),
		SafetyParam:       le.Uint16(buf[34:36]),
		USBPowerMode:      USBPowerMode(buf[36]),
		Fault:             FaultStatus(buf[37]),
		PowerSaveEnabled:  buf[38] != 0,
		HeartbeatLost:     buf[39] != 0,
		Harness:           HarnessStatus(buf[40]),
		FaultBits:         le.Uint32(buf[44:48]),
	}
}

func (b *usbBoard) CANReceive(busShift uint8) ([]byte, error) {
	buf := make([]byte, 16384)
	n, err := b.epIn.ReadContext(ctxTimeout(bulkTimeout), buf)
	if err != nil {
		return nil, nil // no data available this tick is not an error
	}
	applyBusShift(buf[:n], busShift)
	return buf[:n], nil
}

func (b *usbBoard) CANSend(frames []SendCanFrame) error {
	for _, f := range frames {
		packet := encodeCanSend(f)
		_, err := b.epOut.WriteContext(ctxTimeout(bulkTimeout), packet)
		if err != nil {
			b.commsHealthy = false
			return fmt.Errorf("%w: can send: %v", ErrNotConnected, err)
		}
	}
	return nil
}

func (b *usbBoard) GetFanSpeed() (uint16, error) {
	buf := make([]byte, 2)
	_, err := b.dev.Control(gousb.ControlIn|gousb.ControlVendor, 0xb2, 0, 0, buf)
	if err != nil {
		return 0, fmt.Errorf("%w: fan: %v", ErrNotConnected, err)
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (b *usbBoard) SetFanSpeed(rpm uint16) error {
	return b.control(0xb1, rpm, 0, nil)
}

func (b *usbBoard) SetIRPower(percent uint16) error {
	return b.control(0xb0, percent, 0, nil)
}

func (b *usbBoard) SendHeartbeat() error {
	return b.control(0xf3, 0, 0, nil)
}

func (b *usbBoard) GetFirmwareVersion() ([8]byte, error) {
	var out [8]byte
	buf := make([]byte, 8)
	_, err := b.dev.Control(gousb.ControlIn|gousb.ControlVendor, 0xd6, 0, 0, buf)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrNoFirmware, err)
	}
	copy(out[:], buf)
	return out, nil
}

func (b *usbBoard) Close() error {
	if !b.connected && b.intf == nil {
		return nil
	}
	b.connected = false
	if b.intf != nil {
		b.intf.Close()
		b.intf = nil
	}
	if b.cfg != nil {
		b.cfg.Close()
		b.cfg = nil
	}
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
	if b.ctx != nil {
		b.ctx.Close()
		b.ctx = nil
	}
	return nil
}

// ctxTimeout returns a context good for a single bulk transfer deadline.
// The cancel func is intentionally leaked to the transfer's lifetime; the
// USB stack tears it down once the call returns.
func ctxTimeout(d time.Duration) context.Context {
	ctx, _ := context.WithTimeout(context.Background(), d) //nolint:lostcancel
	return ctx
}

func boolToU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// applyBusShift rewrites the bus-index nibble of every frame header in buf
// so downstream consumers see a unified 0/1/2 numbering across boards.
func applyBusShift(buf []byte, shift uint8) {
	const frameHeaderSize = 5
	for i := 0; i+frameHeaderSize <= len(buf); i += frameHeaderSize {
		bus := buf[i+4] & 0x0f
		buf[i+4] = (bus + shift) | (buf[i+4] &^ 0x0f)
	}
}

func encodeCanSend(f SendCanFrame) []byte {
	out := make([]byte, 5+len(f.Data))
	binary.LittleEndian.PutUint32(out[0:4], f.Address)
	out[4] = f.Bus
	copy(out[5:], f.Data)
	return out
}
