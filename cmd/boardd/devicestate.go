package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/boardd/boardd/internal/hwcontrol"
	"github.com/boardd/boardd/pkg/pubsub"
)

// deviceStateChannel and driverCameraStateChannel are the two subscribed
// streams hwcontrol.Run reacts to (spec §4.6, §6 "Subscribes: sendcan,
// deviceState, driverCameraState").
const (
	deviceStateChannel       = "deviceState"
	driverCameraStateChannel = "driverCameraState"
)

type deviceStateWire struct {
	ChargingDisabled bool  `json:"chargingDisabled"`
	FanSpeedPct      uint8 `json:"fanSpeedPct"`
}

type driverCameraStateWire struct {
	IntegLines float64 `json:"integLines"`
}

// deviceStateTracker subscribes to the deviceState and driverCameraState
// pub/sub channels and caches the latest decoded values behind a mutex
// (spec §4.6 "event-driven against a subscriber that exposes two
// streams"). Its Get method satisfies hwcontrol.StateSource.
//
// Grounded on the teacher's pattern of a background goroutine blocking on
// a subscriber with a bounded timeout and publishing into shared state for
// another loop to read (internal/canloop's send loop in this module blocks
// on its subscriber the same way).
type deviceStateTracker struct {
	mu sync.Mutex

	shouldCharge bool
	fanSpeedPct  uint8
	integLines   float64
	lastCameraAt time.Time
}

// newDeviceStateTracker starts the two subscriber goroutines and returns
// the tracker. The goroutines run until ctx is canceled.
func newDeviceStateTracker(ctx context.Context, sub pubsub.Subscriber, logger *slog.Logger) *deviceStateTracker {
	t := &deviceStateTracker{}
	go t.pumpDeviceState(ctx, sub, logger)
	go t.pumpDriverCameraState(ctx, sub, logger)
	return t
}

func (t *deviceStateTracker) pumpDeviceState(ctx context.Context, sub pubsub.Subscriber, logger *slog.Logger) {
	for ctx.Err() == nil {
		msg, err := sub.Receive(ctx, deviceStateChannel, time.Second)
		if err != nil {
			return
		}
		if msg.Data == nil {
			continue // timeout, nothing new this iteration
		}
		var wire deviceStateWire
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			logger.Warn("deviceState decode failed", "err", err)
			continue
		}
		t.mu.Lock()
		t.shouldCharge = !wire.ChargingDisabled
		t.fanSpeedPct = wire.FanSpeedPct
		t.mu.Unlock()
	}
}

func (t *deviceStateTracker) pumpDriverCameraState(ctx context.Context, sub pubsub.Subscriber, logger *slog.Logger) {
	for ctx.Err() == nil {
		msg, err := sub.Receive(ctx, driverCameraStateChannel, time.Second)
		if err != nil {
			return
		}
		if msg.Data == nil {
			continue
		}
		var wire driverCameraStateWire
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			logger.Warn("driverCameraState decode failed", "err", err)
			continue
		}
		t.mu.Lock()
		t.integLines = wire.IntegLines
		t.lastCameraAt = time.Now()
		t.mu.Unlock()
	}
}

// Get returns the latest cached state (spec §4.6 "if more than 1s has
// elapsed since the last driver-camera frame, force IR power to 0" is left
// to hwcontrol.sendIR, which reads CameraFrameAge).
func (t *deviceStateTracker) Get() hwcontrol.DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	var age time.Duration
	if t.lastCameraAt.IsZero() {
		age = hwcontrol.CameraFrameTimeout
	} else {
		age = time.Since(t.lastCameraAt)
	}

	return hwcontrol.DeviceState{
		ShouldCharge:   t.shouldCharge,
		FanSpeedPct:    t.fanSpeedPct,
		CameraFrameAge: age,
		IntegLines:     t.integLines,
	}
}
