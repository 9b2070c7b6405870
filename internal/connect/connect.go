// Package connect implements the connection supervisor (spec §4.1): it
// discovers boards, opens and classifies each one, installs firmware
// identity into the parameter store, aligns the host clock, and honors the
// loopback toggle. Grounded on the teacher's network.Connect/AddRemoteNode
// retry shape (samsamfire-gocanopen pkg/network), generalized from
// CANopen-node discovery to USB-board discovery.
package connect

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/boardcan"
	"github.com/boardd/boardd/pkg/paramstore"
)

// DiscoverPollInterval is the cadence at which board discovery is retried
// until at least one board is reported (spec §4.1).
const DiscoverPollInterval = 100 * time.Millisecond

// Lister enumerates attached board USB serials; satisfied by board.List in
// production and a fake in tests.
type Lister func() ([]string, error)

// Opener opens a board by USB serial; satisfied by board.Open in
// production and a fake in tests.
type Opener func(serial string) (board.Board, error)

// HostClock abstracts reading/setting the host's wall clock so tests don't
// touch the real system clock.
type HostClock interface {
	Valid() bool
	Set(t time.Time) error
}

// Options configures a single Run of the connection supervisor.
type Options struct {
	List     Lister
	Open     Opener
	Params   paramstore.ParamStore
	Clock    HostClock
	Loopback bool
	Logger   *slog.Logger

	// firstOpenDone tracks whether any board has been opened in this process
	// lifetime, gating the one-time CDP command (spec §4.1).
	firstOpenDone bool
}

// Run executes the connection supervisor once (spec §4.1). It polls
// discovery every DiscoverPollInterval until at least one board is
// reported, then opens and classifies each discovered serial, continuing
// until connected equals detected or exit is requested. It returns nil iff
// main is populated and exit was not requested.
func Run(ctx context.Context, sup *supervisor.Supervisor, opts *Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(DiscoverPollInterval)
	defer ticker.Stop()

	for {
		if sup.ExitRequested() {
			return board.ErrNoBoardsFound
		}

		serials, err := opts.List()
		if err != nil || len(serials) == 0 {
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		sup.SetDetected(serials)
		openAll(sup, opts, logger)

		if len(sup.Connected()) >= len(sup.Detected()) && sup.Main() != nil {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if sup.Main() != nil && opts.Clock != nil && !opts.Clock.Valid() {
		if rtc, ok := boardRTC(sup.Main()); ok {
			if err := opts.Clock.Set(rtc); err != nil {
				logger.Warn("failed to set host clock from board RTC", "err", err)
			}
		}
	}

	if sup.Ready() {
		return nil
	}
	return board.ErrNoBoardsFound
}

// openAll opens every detected serial not yet connected, installs it into
// a slot, and publishes its firmware identity. Any failure drops that
// board for this tick; the outer discovery loop retries it next tick
// (spec §4.1 failure semantics).
func openAll(sup *supervisor.Supervisor, opts *Options, logger *slog.Logger) {
	connected := make(map[string]bool)
	for _, s := range sup.Connected() {
		connected[s] = true
	}

	for _, serial := range sup.Detected() {
		if connected[serial] {
			continue
		}

		b, err := opts.Open(serial)
		if err != nil {
			logger.Warn("open failed, will retry", "serial", serial, "err", err)
			continue
		}

		sig, err := b.GetFirmwareVersion()
		if err != nil {
			logger.Warn("firmware read failed, dropping board", "serial", serial, "err", err)
			b.Close()
			continue
		}
		gotSerial := b.USBSerial()
		if gotSerial == "" {
			logger.Warn("serial read failed, dropping board", "serial", serial)
			b.Close()
			continue
		}

		if !opts.firstOpenDone {
			if err := b.SetUSBPowerMode(board.PowerCDP); err != nil {
				logger.Warn("failed to enable host charging", "err", err)
			}
			opts.firstOpenDone = true
		}

		if opts.Loopback {
			if err := b.SetLoopback(true); err != nil {
				logger.Warn("failed to enable loopback", "err", err)
			}
		}

		publishIdentity(opts.Params, sig, gotSerial)

		sup.Install(b)
		sup.MarkConnected(serial)
		logger.Info("board connected", "serial", gotSerial, "hw_type", b.HwType())
	}
}

func publishIdentity(params paramstore.ParamStore, sig [8]byte, serial string) {
	if params == nil {
		return
	}
	_ = params.Put(paramstore.KeyPandaFirmware, sig[:])
	_ = params.Put(paramstore.KeyPandaFirmwareHex, []byte(boardcan.FirmwareHex(sig)))
	_ = params.Put(paramstore.KeyPandaDongleId, []byte(serial))
}

func boardRTC(b board.Board) (time.Time, bool) {
	if !b.HasRTC() {
		return time.Time{}, false
	}
	t, err := b.GetRTC()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
