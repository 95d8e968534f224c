package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessChecker reports whether an OS process is alive by PID. The
// Watchdog uses this for is_worker_alive instead of a signal(0) probe.
// When Name is set the process name is compared too; the Watchdog leaves
// it empty, so its checks go by PID alone.
type ProcessChecker struct {
	PID  int32
	Name string
}

// NewProcessChecker creates a checker for the given PID.
func NewProcessChecker(pid int32) *ProcessChecker {
	return &ProcessChecker{PID: pid}
}

// Check reports whether the process is running.
func (c *ProcessChecker) Check(ctx context.Context) Result {
	start := time.Now()

	proc, err := process.NewProcessWithContext(ctx, c.PID)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("process lookup failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}

	running, err := proc.IsRunningWithContext(ctx)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("process status check failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	if !running {
		return Result{Healthy: false, Message: "process not running", CheckedAt: start, Duration: time.Since(start)}
	}

	if c.Name != "" {
		name, err := proc.NameWithContext(ctx)
		if err == nil && name != c.Name {
			return Result{Healthy: false, Message: fmt.Sprintf("pid %d reused by %q, not %q", c.PID, name, c.Name), CheckedAt: start, Duration: time.Since(start)}
		}
	}

	return Result{Healthy: true, Message: "process alive", CheckedAt: start, Duration: time.Since(start)}
}

// Type returns the health check type.
func (c *ProcessChecker) Type() CheckType { return CheckTypeProcess }
