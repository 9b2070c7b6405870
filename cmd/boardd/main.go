// Command boardd is the board supervisor daemon: it discovers and
// classifies attached boards, pumps CAN traffic, tracks ignition and
// safety-mode state, drives fan/charging/IR hardware, and pumps GPS
// traffic, reconnecting from scratch whenever the main board disappears
// (spec §5). Grounded on the teacher's cmd/canopen_http logrus-at-root
// entrypoint style, generalized from a one-shot network connect to the
// daemon's outer connect/run/teardown/reconnect loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/boardd/boardd/internal/boardstate"
	"github.com/boardd/boardd/internal/canloop"
	"github.com/boardd/boardd/internal/config"
	"github.com/boardd/boardd/internal/connect"
	"github.com/boardd/boardd/internal/gps"
	"github.com/boardd/boardd/internal/hwcontrol"
	"github.com/boardd/boardd/internal/platform"
	"github.com/boardd/boardd/internal/safetysetter"
	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/paramstore"
	"github.com/boardd/boardd/pkg/pubsub"
)

func main() {
	loopback := flag.Bool("loopback", false, "enable board CAN loopback after open")
	fakeSend := flag.Bool("fake-send", false, "consume sendcan without writing to the board")
	configPath := flag.String("config", "/etc/boardd/boardd.ini", "path to the boardd ini config")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *loopback {
		cfg.Loopback = true
	}
	if *fakeSend {
		cfg.FakeSend = true
	}

	plat := platform.Detect()
	log.WithField("platform", plat).Info("boardd starting")

	if err := platform.PinRealtime(platform.DefaultCPU(plat)); err != nil {
		log.WithError(err).Warn("failed to pin real-time scheduling")
	}

	bus := pubsub.NewChannelBus(256)
	params := paramstore.NewMemory()
	params.SetTags(paramstore.KeyCarVin, paramstore.TagClearOnIgnitionOn)
	params.SetTags(paramstore.KeyCarParams, paramstore.TagClearOnIgnitionOn)
	params.SetTags(paramstore.KeyControlsReady, paramstore.TagClearOnIgnitionOn, paramstore.TagClearOnIgnitionOff)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("signal received, shutting down")
		cancel()
	}()

	// connectOpts (and the firstOpenDone it carries) is built once for the
	// life of the process: the "first USB open ever" CDP gate (spec §4.1)
	// must survive across reconnects, not reset on every runOnce call.
	connectOpts := &connect.Options{
		List:     board.List,
		Open:     board.Open,
		Params:   params,
		Clock:    systemClock{},
		Loopback: cfg.Loopback,
		Logger:   logger,
	}

	for ctx.Err() == nil {
		runOnce(ctx, cfg, plat, bus, params, connectOpts, logger)
	}
	log.Info("boardd exiting")
}

// runOnce executes one connect/run/teardown cycle (spec §5 reconnection
// policy): it connects, spawns every worker loop, waits for all of them to
// exit (main disconnecting or a shutdown signal), then tears down and lets
// the caller loop back into a fresh connect attempt. connectOpts is shared
// across every call so its firstOpenDone gate persists for the process
// lifetime rather than resetting on each reconnect.
func runOnce(ctx context.Context, cfg config.Config, plat platform.Kind, bus pubsub.PubSub, params paramstore.ParamStore, connectOpts *connect.Options, logger *slog.Logger) {
	sup := supervisor.New(cfg.MainShift, cfg.AuxShift)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if err := connect.Run(workerCtx, sup, connectOpts); err != nil {
		log.WithError(err).Warn("connect supervisor failed, retrying")
		sup.Reset()
		return
	}

	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	spawn(func() { canloop.Recv(workerCtx, sup, bus, logger) })
	spawn(func() { canloop.Send(workerCtx, sup, bus, decodeSendCan, cfg.FakeSend, logger) })
	devState := newDeviceStateTracker(workerCtx, bus, logger)

	spawn(func() {
		boardstate.Run(workerCtx, sup, &boardstate.Options{
			Pub:                 bus,
			Params:              params,
			Clock:               systemClock{},
			Platform:            plat,
			Encode:              encodePandaState,
			Logger:              logger,
			SimulatedIgnitionOn: cfg.SimulateIgnitionOn,
			LaunchSafetySetter: func(ctx context.Context) {
				spawn(func() {
					err := safetysetter.Run(ctx, sup, &safetysetter.Options{
						Params: params,
						Decode: decodeCarParams,
						Logger: logger,
					})
					if err != nil {
						logger.Warn("safety setter failed", "err", err)
					}
				})
			},
		})
		// The board-state loop returns once main disconnects; the
		// hardware-control, GPS and send loops do not watch main's
		// connection, so cancel them here to let this cycle end.
		stopWorkers()
	})
	spawn(func() {
		hwcontrol.Run(workerCtx, sup, &hwcontrol.Options{
			State:      devState.Get,
			Platform:   plat,
			CutoffIL:   cfg.CutoffIL,
			SaturateIL: cfg.SaturateIL,
			MinIRPower: cfg.MinIRPower,
			MaxIRPower: cfg.MaxIRPower,
			Logger:     logger,
		})
	})
	spawn(func() {
		gps.Run(workerCtx, sup, &gps.Options{
			Pub:      bus,
			Platform: plat,
			Timeouts: gpsTimeouts(cfg),
			Logger:   logger,
		})
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		stopWorkers()
		<-done
	}

	sup.Reset()
}
