package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveFaults_AscendingOrder(t *testing.T) {
	bits := uint32(1<<FaultSpiError | 1<<FaultRelayMalfunction | 1<<FaultInterruptRateTick)
	assert.Equal(t, []FaultKind{
		FaultRelayMalfunction,
		FaultSpiError,
		FaultInterruptRateTick,
	}, ActiveFaults(bits))
}

func TestActiveFaults_NoneSet(t *testing.T) {
	assert.Empty(t, ActiveFaults(0))
}

func TestHardwareType_String(t *testing.T) {
	assert.Equal(t, "BLACK", HwBlack.String())
	assert.Equal(t, "UNKNOWN", HardwareType(99).String())
}
