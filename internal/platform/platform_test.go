package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetect_EnvOverride(t *testing.T) {
	t.Setenv("BOARDD_PLATFORM", "TICI")
	assert.Equal(t, TICI, Detect())

	t.Setenv("BOARDD_PLATFORM", "PC")
	assert.Equal(t, PC, Detect())

	t.Setenv("BOARDD_PLATFORM", "OTHER")
	assert.Equal(t, Other, Detect())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "TICI", TICI.String())
	assert.Equal(t, "PC", PC.String())
	assert.Equal(t, "OTHER", Other.String())
}

func TestSlowRead_Threshold(t *testing.T) {
	assert.False(t, SlowRead(10*time.Millisecond))
	assert.True(t, SlowRead(100*time.Millisecond))
}

func TestDefaultCPU(t *testing.T) {
	assert.Equal(t, 3, DefaultCPU(TICI))
	assert.Equal(t, 0, DefaultCPU(PC))
	assert.Equal(t, 0, DefaultCPU(Other))
}
