package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint8(0), cfg.MainShift)
	assert.Equal(t, uint8(3), cfg.AuxShift)
	assert.Equal(t, 200.0, cfg.CutoffIL)
	assert.Equal(t, 1600.0, cfg.SaturateIL)
	assert.Equal(t, 0.0, cfg.MinIRPower)
	assert.Equal(t, 0.5, cfg.MaxIRPower)
	assert.Equal(t, 0.9, cfg.GPSClassTimeouts[0x01])
}

func TestApplyEnv_AuxCanDriveSwapsShifts(t *testing.T) {
	t.Setenv("AUX_CAN_DRIVE", "1")
	cfg := Default()
	applyEnv(&cfg)
	assert.Equal(t, uint8(3), cfg.MainShift)
	assert.Equal(t, uint8(0), cfg.AuxShift)
}

func TestApplyEnv_Flags(t *testing.T) {
	t.Setenv("BOARDD_LOOPBACK", "1")
	t.Setenv("FAKESEND", "1")
	t.Setenv("STARTED", "1")
	cfg := Default()
	applyEnv(&cfg)
	assert.True(t, cfg.Loopback)
	assert.True(t, cfg.FakeSend)
	assert.True(t, cfg.SimulateIgnitionOn)
}

func TestLoad_IniOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "boardd-*.ini")
	require.NoError(t, err)
	_, err = f.WriteString("[ir]\ncutoff_il = 250\nmax_power = 0.75\n\n[gps]\n0x01 = 1.5\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.CutoffIL)
	assert.Equal(t, 0.75, cfg.MaxIRPower)
	assert.Equal(t, 1.5, cfg.GPSClassTimeouts[0x01])
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/boardd.ini")
	require.NoError(t, err)
	assert.Equal(t, Default().CutoffIL, cfg.CutoffIL)
}
