package boardcan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendCanBatch_Stale(t *testing.T) {
	now := time.Now()
	fresh := SendCanBatch{LogMonoTime: now.Add(-500 * time.Millisecond)}
	stale := SendCanBatch{LogMonoTime: now.Add(-1100 * time.Millisecond)}
	boundary := SendCanBatch{LogMonoTime: now.Add(-StaleAfter)}

	assert.False(t, fresh.Stale(now))
	assert.True(t, stale.Stale(now))
	assert.True(t, boundary.Stale(now), "exactly StaleAfter old counts as stale")
}

func TestFirmwareHex_RoundTrip(t *testing.T) {
	sig := [8]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33}
	assert.Equal(t, "deadbeef00112233", FirmwareHex(sig))
}
