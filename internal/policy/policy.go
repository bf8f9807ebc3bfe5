// Package policy holds the pure automation decision functions. The global
// level is always passed in explicitly so decisions stay deterministic and
// independently testable.
package policy

import (
	"fmt"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/task"
	"github.com/citizenly/autopilot/pkg/cerr"
)

// Level is the session-wide automation dial.
type Level string

const (
	LevelMinimal    Level = "minimal"
	LevelModerate   Level = "moderate"
	LevelAggressive Level = "aggressive"
	LevelMaximum    Level = "maximum"
)

func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelMinimal, LevelModerate, LevelAggressive, LevelMaximum:
		return Level(s), nil
	}
	return "", cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown automation level %q", s), nil)
}

// ShouldAutoRun decides whether a newly created task is executed without a
// manual trigger. The more restrictive of the global level and the task's
// own automation setting governs: a manual task never auto-runs, whatever
// the global dial says.
func ShouldAutoRun(global Level, t *task.Task) bool {
	if t.AutomationLevel == task.AutomationManual {
		return false
	}
	switch global {
	case LevelMaximum:
		return true
	case LevelAggressive:
		return t.Priority == task.PriorityHigh
	default:
		return false
	}
}

// ConfirmationNeeded decides whether a successful execution still routes
// through the pending-confirmation queue. Auto-run eligibility and the
// confirmation requirement are independent gates: auto-run only starts
// execution, it never waives sign-off.
//
// A task that requires confirmation may skip it only when the owner set a
// per-type threshold and the capability's accuracy estimate meets it.
func ConfirmationNeeded(t *task.Task, c *capability.Capability, thresholds map[string]float64) bool {
	if !t.ConfirmationRequired {
		return false
	}
	if c == nil {
		return true
	}
	threshold, ok := thresholds[string(t.Type)]
	if !ok {
		return true
	}
	return c.Accuracy < threshold
}
