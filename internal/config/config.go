// Package config merges environment variables (spec §6) and an optional ini
// file (repurposing the teacher's gopkg.in/ini.v1 dependency, previously
// used for EDS parsing) into one Config struct; cmd/boardd applies its CLI
// flag overrides on top of the result.
package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// Config holds every tunable the daemon reads at startup.
type Config struct {
	// Loopback enables board CAN loopback mode after open (BOARDD_LOOPBACK).
	Loopback bool
	// SimulateIgnitionOn forces IgnitionLine=1 in published board state
	// (STARTED).
	SimulateIgnitionOn bool
	// FakeSend makes the CAN send loop consume sendcan without calling the
	// board (FAKESEND).
	FakeSend bool
	// MainShift/AuxShift are the per-board CAN bus index shifts (spec §3).
	MainShift uint8
	AuxShift  uint8

	// GPSClassTimeouts overrides the per-message-class GPS timeout table
	// (spec §4.7); keyed by class byte.
	GPSClassTimeouts map[byte]float64

	// IR power curve constants (spec §4.6).
	CutoffIL     float64
	SaturateIL   float64
	MinIRPower   float64
	MaxIRPower   float64

	// RealtimeCPU holds the [scheduling] cpu ini value. cmd/boardd pins to
	// platform.DefaultCPU and does not read this field; the real-time
	// priority has no config override.
	RealtimeCPU int
}

// Default returns the compiled-in defaults, matching spec §4.6/§4.7/§3.
func Default() Config {
	return Config{
		MainShift:  0,
		AuxShift:   3,
		CutoffIL:   200,
		SaturateIL: 1600,
		MinIRPower: 0.0,
		MaxIRPower: 0.5,
		GPSClassTimeouts: map[byte]float64{
			0x01: 0.9, // navigation class
			0x02: 0.9, // receiver-manager class
		},
	}
}

// Load builds a Config from the default values, an optional ini file at
// path (ignored if it doesn't exist) and environment variables, in that
// order of increasing precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := ini.Load(path)
			if err != nil {
				return cfg, err
			}
			applyIni(&cfg, f)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyIni(cfg *Config, f *ini.File) {
	sec := f.Section("gps")
	for _, key := range sec.Keys() {
		if v, err := key.Float64(); err == nil && len(key.Name()) > 0 {
			if b, err := parseClassByte(key.Name()); err == nil {
				cfg.GPSClassTimeouts[b] = v
			}
		}
	}

	ir := f.Section("ir")
	if ir.HasKey("cutoff_il") {
		cfg.CutoffIL, _ = ir.Key("cutoff_il").Float64()
	}
	if ir.HasKey("saturate_il") {
		cfg.SaturateIL, _ = ir.Key("saturate_il").Float64()
	}
	if ir.HasKey("min_power") {
		cfg.MinIRPower, _ = ir.Key("min_power").Float64()
	}
	if ir.HasKey("max_power") {
		cfg.MaxIRPower, _ = ir.Key("max_power").Float64()
	}

	sched := f.Section("scheduling")
	if sched.HasKey("cpu") {
		cfg.RealtimeCPU, _ = sched.Key("cpu").Int()
	}
}

func parseClassByte(name string) (byte, error) {
	var b uint16
	_, err := fmt.Sscanf(name, "0x%x", &b)
	return byte(b), err
}

func applyEnv(cfg *Config) {
	if _, ok := os.LookupEnv("BOARDD_LOOPBACK"); ok {
		cfg.Loopback = true
	}
	if _, ok := os.LookupEnv("STARTED"); ok {
		cfg.SimulateIgnitionOn = true
	}
	if _, ok := os.LookupEnv("FAKESEND"); ok {
		cfg.FakeSend = true
	}
	if _, ok := os.LookupEnv("AUX_CAN_DRIVE"); ok {
		cfg.MainShift, cfg.AuxShift = 3, 0
	}
}
