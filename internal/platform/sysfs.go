package platform

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	voltagePath = "/sys/class/hwmon/hwmon1/in1_input"
	currentPath = "/sys/class/hwmon/hwmon1/curr1_input"
	// slowSysfsRead is the threshold past which a sysfs read is logged as
	// slow (spec §4.4 TICI note).
	slowSysfsRead = 50 * time.Millisecond
)

// ReadVoltageCurrent reads voltage (millivolts) and current (milliamps)
// from sysfs on the TICI platform, where the board itself does not report
// them. Returns the elapsed read time so the caller can log overruns.
func ReadVoltageCurrent() (millivolts, milliamps uint32, elapsed time.Duration, err error) {
	start := time.Now()
	defer func() { elapsed = time.Since(start) }()

	mv, err := readSysfsUint(voltagePath)
	if err != nil {
		return 0, 0, 0, err
	}
	ma, err := readSysfsUint(currentPath)
	if err != nil {
		return 0, 0, 0, err
	}
	return mv, ma, 0, nil
}

func readSysfsUint(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// SlowRead reports whether elapsed exceeds the logging threshold.
func SlowRead(elapsed time.Duration) bool {
	return elapsed > slowSysfsRead
}
