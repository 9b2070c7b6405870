package board

import (
	"sync"
	"time"
)

// FakeBoard is an in-memory Board used by tests. All setters record the
// most recent value so tests can assert on commanded state transitions.
type FakeBoard struct {
	mu sync.Mutex

	hwType       HardwareType
	serial       string
	connected    bool
	commsHealthy bool
	hasRTC       bool

	powerMode   USBPowerMode
	safetyModel SafetyModel
	safetyParam uint16
	unsafeMode  uint16
	powerSaving bool
	loopback    bool
	rtc         time.Time
	fanRPM      uint16
	irPercent   uint16
	heartbeats  int
	firmware    [8]byte

	state HealthSnapshot

	recvQueue [][]byte
	sent      []SendCanFrame
}

func NewFakeBoard(hw HardwareType, serial string) *FakeBoard {
	return &FakeBoard{
		hwType:       hw,
		serial:       serial,
		connected:    true,
		commsHealthy: true,
		hasRTC:       hw == HwDos,
		safetyModel:  SafetyNoOutput,
	}
}

func (f *FakeBoard) HwType() HardwareType { return f.hwType }
func (f *FakeBoard) USBSerial() string    { return f.serial }

func (f *FakeBoard) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeBoard) CommsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commsHealthy
}

func (f *FakeBoard) HasRTC() bool { return f.hasRTC }

func (f *FakeBoard) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
	f.commsHealthy = v
}

func (f *FakeBoard) SetUSBPowerMode(mode USBPowerMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerMode = mode
	return nil
}

func (f *FakeBoard) USBPowerMode() USBPowerMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerMode
}

func (f *FakeBoard) SetSafetyModel(model SafetyModel, param uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.safetyModel = model
	f.safetyParam = param
	return nil
}

func (f *FakeBoard) SafetyModel() (SafetyModel, uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.safetyModel, f.safetyParam
}

func (f *FakeBoard) SetUnsafeMode(mode uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsafeMode = mode
	return nil
}

func (f *FakeBoard) SetPowerSaving(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerSaving = enabled
	return nil
}

func (f *FakeBoard) PowerSaving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerSaving
}

func (f *FakeBoard) SetLoopback(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loopback = enabled
	return nil
}

func (f *FakeBoard) GetRTC() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rtc, nil
}

func (f *FakeBoard) SetRTC(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rtc = t
	return nil
}

func (f *FakeBoard) SetState(s HealthSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *FakeBoard) GetState() (HealthSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.SafetyModel = f.safetyModel
	s.SafetyParam = f.safetyParam
	s.USBPowerMode = f.powerMode
	s.PowerSaveEnabled = f.powerSaving
	return s, nil
}

// QueueReceive pushes a chunk of raw CAN bytes to be returned by the next
// CANReceive call.
func (f *FakeBoard) QueueReceive(buf []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvQueue = append(f.recvQueue, buf)
}

func (f *FakeBoard) CANReceive(busShift uint8) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recvQueue) == 0 {
		return nil, nil
	}
	buf := f.recvQueue[0]
	f.recvQueue = f.recvQueue[1:]
	return buf, nil
}

func (f *FakeBoard) CANSend(frames []SendCanFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frames...)
	return nil
}

func (f *FakeBoard) Sent() []SendCanFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendCanFrame(nil), f.sent...)
}

func (f *FakeBoard) GetFanSpeed() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fanRPM, nil
}

func (f *FakeBoard) SetFanSpeed(rpm uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fanRPM = rpm
	return nil
}

func (f *FakeBoard) SetIRPower(percent uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irPercent = percent
	return nil
}

func (f *FakeBoard) IRPower() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.irPercent
}

func (f *FakeBoard) SendHeartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *FakeBoard) Heartbeats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats
}

func (f *FakeBoard) SetFirmwareVersion(v [8]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.firmware = v
}

func (f *FakeBoard) GetFirmwareVersion() ([8]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firmware, nil
}

func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

var _ Board = (*FakeBoard)(nil)
