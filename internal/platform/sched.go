package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RealtimePriority is the SCHED_FIFO priority the board-state loop's
// process runs at (spec §5).
const RealtimePriority = 54

// PinRealtime sets a real-time scheduling priority and pins the calling
// thread to the given CPU core, matching spec §5 ("sets a real-time
// priority (54) and pins to a platform-specific CPU core"). Best-effort:
// failures are returned for the caller to log rather than treated as
// fatal, since this requires privileges not always available (e.g. in
// CI or developer sandboxes).
func PinRealtime(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("platform: set affinity: %w", err)
	}
	// Linux's SCHED_FIFO policy number, passed to sched_setscheduler(2)
	// together with a struct sched_param holding the priority.
	const schedFIFO = 1
	param := struct{ priority int32 }{RealtimePriority}
	if _, _, errno := unix.RawSyscall(unix.SYS_SCHED_SETSCHEDULER, 0, schedFIFO, uintptr(unsafe.Pointer(&param))); errno != 0 {
		return fmt.Errorf("platform: set priority: %w", errno)
	}
	return nil
}

// DefaultCPU returns the CPU core the board-state loop should be pinned to
// for the given platform kind.
func DefaultCPU(k Kind) int {
	switch k {
	case TICI:
		return 3
	default:
		return 0
	}
}
