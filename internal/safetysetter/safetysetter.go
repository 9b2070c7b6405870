// Package safetysetter implements the one-shot safety-setter task (spec
// §4.5): it waits for the car interface to publish a VIN and a decoded
// car-params blob, then commissions the safety model those params call
// for onto both boards. Grounded on the teacher's pkg/sdo client-side
// upload/download retry loop (samsamfire-gocanopen pkg/sdo/client.go),
// generalized from a single blocking SDO transfer to a sequence of
// paramstore polls.
package safetysetter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boardd/boardd/internal/supervisor"
	"github.com/boardd/boardd/pkg/board"
	"github.com/boardd/boardd/pkg/paramstore"
)

// PollInterval is the cadence at which the safety-setter re-checks
// paramstore for VIN and car-params readiness (spec §4.5: "Polls ... every
// 100 ms").
const PollInterval = 100 * time.Millisecond

// vinLength is the expected length of a VIN (spec §4.5 invariant).
const vinLength = 17

// elm327Locked is the safety-param value that locks ELM327 diagnostic mode
// once the VIN has been observed (spec §4.5: "commands both boards to
// ELM327 with param=1 (locked)").
const elm327Locked = 1

// CarParams is the decoded subset of the car-interface params this daemon
// needs: the safety model to commission and its accompanying parameter.
type CarParams struct {
	SafetyModel board.SafetyModel
	SafetyParam uint16
}

// Decoder turns the raw CarParams paramstore blob into the safety model
// and param this daemon must command. The wire schema is owned by the
// car-interface layer (out of scope, spec §1 Non-goals); tests supply a
// trivial decoder.
type Decoder func(raw []byte) (CarParams, error)

// Options configures a single Run of the safety-setter task.
type Options struct {
	Params  paramstore.ParamStore
	Decode  Decoder
	Logger  *slog.Logger
}

// Run executes the safety-setter sequence once (spec §4.5). It always
// calls sup.FinishSafetySetter on return, regardless of outcome, so a
// subsequent ignition cycle can start a fresh run.
func Run(ctx context.Context, sup *supervisor.Supervisor, opts *Options) error {
	defer sup.FinishSafetySetter()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	main := sup.Main()
	if main == nil {
		return board.ErrNotConnected
	}
	aux := sup.Aux()

	if err := main.SetSafetyModel(board.SafetyElm327, 0); err != nil {
		return err
	}
	if aux != nil {
		if err := aux.SetSafetyModel(board.SafetyElm327, 0); err != nil {
			logger.Warn("failed to command aux to ELM327", "err", err)
		}
	}

	vin, err := pollVin(ctx, sup, opts.Params)
	if err != nil {
		return err
	}
	logger.Info("safety setter observed VIN", "vin", vin)

	if err := main.SetSafetyModel(board.SafetyElm327, elm327Locked); err != nil {
		logger.Warn("failed to lock ELM327", "err", err)
	}
	if aux != nil {
		if err := aux.SetSafetyModel(board.SafetyElm327, elm327Locked); err != nil {
			logger.Warn("failed to lock aux ELM327", "err", err)
		}
	}

	raw, err := pollCarParams(ctx, sup, opts.Params)
	if err != nil {
		return err
	}

	params, err := opts.Decode(raw)
	if err != nil {
		return err
	}

	if err := main.SetUnsafeMode(0); err != nil {
		logger.Warn("failed to clear unsafe mode before commissioning", "err", err)
	}
	if err := main.SetSafetyModel(params.SafetyModel, params.SafetyParam); err != nil {
		return err
	}
	if aux != nil {
		if err := aux.SetSafetyModel(params.SafetyModel, params.SafetyParam); err != nil {
			logger.Warn("failed to commission aux safety model", "err", err)
		}
	}

	logger.Info("safety setter commissioned", "model", params.SafetyModel, "param", params.SafetyParam)
	return nil
}

// pollVin blocks until paramstore reports a non-empty, 17-character VIN,
// or until ctx is canceled, exit is requested, or main disconnects (spec
// §4.5 early-exit conditions).
func pollVin(ctx context.Context, sup *supervisor.Supervisor, params paramstore.ParamStore) (string, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if shouldAbort(sup) {
			return "", board.ErrNotConnected
		}
		v, err := params.Get(paramstore.KeyCarVin)
		if err == nil && len(v) > 0 {
			if len(v) != vinLength {
				panic(fmt.Sprintf("safetysetter: CarVin must be %d characters, got %d", vinLength, len(v)))
			}
			return string(v), nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// pollCarParams blocks until paramstore reports ControlsReady==true and a
// non-empty CarParams blob (spec §4.5).
func pollCarParams(ctx context.Context, sup *supervisor.Supervisor, params paramstore.ParamStore) ([]byte, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if shouldAbort(sup) {
			return nil, board.ErrNotConnected
		}
		ready, err := params.GetBool(paramstore.KeyControlsReady)
		if err == nil && ready {
			raw, err := params.Get(paramstore.KeyCarParams)
			if err == nil && len(raw) > 0 {
				return raw, nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func shouldAbort(sup *supervisor.Supervisor) bool {
	if sup.ExitRequested() {
		return true
	}
	main := sup.Main()
	return main == nil || !main.Connected()
}
