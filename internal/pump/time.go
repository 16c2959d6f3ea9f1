package pump

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// MaxTargetTime is the longest target time the pump accepts.
const MaxTargetTime = 99*time.Hour + 59*time.Minute + 59*time.Second

// TargetTime manages the run time after which the pump stops.
type TargetTime struct {
	driver *protocol.Driver
}

// Get returns the target time, or nil when none is set.
func (t *TargetTime) Get(ctx context.Context) (*time.Duration, error) {
	resp, err := t.driver.Send(ctx, "ttime")
	if err != nil {
		return nil, err
	}
	d, set, err := parseTargetTime(resp.FirstLine())
	if err != nil || !set {
		return nil, err
	}
	return &d, nil
}

// parseTargetTime accepts "Target time not set", "N seconds", "MM:SS" and "HH:MM:SS".
func parseTargetTime(line string) (time.Duration, bool, error) {
	line = strings.TrimSpace(line)
	if strings.Contains(line, "Target time not set") {
		return 0, false, nil
	}
	if strings.Contains(line, "seconds") {
		q, err := ParseQuantity(line)
		if err != nil {
			return 0, false, err
		}
		return time.Duration(q.Value * float64(time.Second)), true, nil
	}

	parts := strings.Split(line, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false, fmt.Errorf("could not parse target time %q", line)
	}
	var total time.Duration
	units := []time.Duration{time.Second, time.Minute, time.Hour}
	for i := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1-i]))
		if err != nil {
			return 0, false, fmt.Errorf("could not parse target time %q: %w", line, err)
		}
		total += time.Duration(v) * units[i]
	}
	return total, true, nil
}

// Set changes the target time. Durations up to an hour are sent as whole
// seconds, longer ones as HH:MM:SS.
func (t *TargetTime) Set(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return protocol.NewValidationError("ttime", "target time must not be negative, got %s", d)
	}
	if d > MaxTargetTime {
		return protocol.NewValidationError("ttime", "target time %s exceeds 99:59:59", d)
	}
	_, err := t.driver.Send(ctx, "ttime "+formatTargetTime(d))
	return err
}

func formatTargetTime(d time.Duration) string {
	secs := int(d / time.Second)
	if d <= time.Hour {
		return strconv.Itoa(secs)
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// Clear removes the target time.
func (t *TargetTime) Clear(ctx context.Context) error {
	_, err := t.driver.Send(ctx, "cttime")
	return err
}
