package hours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"church-automation/internal/models"
)

// Decision is the gate's verdict for one firing.
type Decision struct {
	Allowed bool
	Reason  string
	// NextWindowStart is set when the firing is deferred; the external
	// scheduler re-enters the pipeline at this instant.
	NextWindowStart time.Time
}

// Gate evaluates business-hours windows against an injected clock.
type Gate struct {
	clock Clock
}

// NewGate creates a gate using the given clock.
func NewGate(clock Clock) *Gate {
	return &Gate{clock: clock}
}

// Check decides whether a rule may dispatch now. Rules without a
// business-hours config, rules with deferral disabled, and rules in
// urgent 24x7 mode always proceed. A broken timezone or window config
// also proceeds; delivery beats strict gating when the config is bad.
func (g *Gate) Check(cfg *models.BusinessHoursConfig, urgentMode bool) Decision {
	if cfg == nil || !cfg.DeferOutsideHours || urgentMode {
		return Decision{Allowed: true}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Decision{Allowed: true}
	}

	now := g.clock.Now().In(loc)

	startMin, err := parseClockTime(cfg.StartTime)
	if err != nil {
		return Decision{Allowed: true}
	}
	endMin, err := parseClockTime(cfg.EndTime)
	if err != nil {
		return Decision{Allowed: true}
	}

	if withinWindow(now, cfg.DaysOfWeek, startMin, endMin) {
		return Decision{Allowed: true}
	}

	return Decision{
		Allowed:         false,
		Reason:          "outside business hours",
		NextWindowStart: nextWindowStart(now, cfg.DaysOfWeek, startMin),
	}
}

func withinWindow(now time.Time, days []int, startMin, endMin int) bool {
	if !dayAllowed(days, int(now.Weekday())) {
		return false
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	return minuteOfDay >= startMin && minuteOfDay <= endMin
}

func dayAllowed(days []int, weekday int) bool {
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

// nextWindowStart finds the earliest future instant at startMin on an
// allowed weekday, scanning at most one week ahead.
func nextWindowStart(now time.Time, days []int, startMin int) time.Time {
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		if !dayAllowed(days, int(day.Weekday())) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(),
			startMin/60, startMin%60, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	// No allowed day configured; park the firing a day out.
	return now.Add(24 * time.Hour)
}

// parseClockTime converts "HH:MM" to minutes since midnight.
func parseClockTime(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time: %s", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in clock time: %s", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in clock time: %s", s)
	}
	return h*60 + m, nil
}
