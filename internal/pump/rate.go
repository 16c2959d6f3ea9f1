package pump

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// RampInfo describes a linear change of motor speed.
type RampInfo struct {
	Start    Quantity
	End      Quantity
	Duration time.Duration
}

// Rate manages the infusion ("i") or withdrawal ("w") rate.
type Rate struct {
	driver *protocol.Driver
	letter string
}

func (r *Rate) command(suffix string) string {
	return r.letter + suffix
}

// Get returns the configured rate.
func (r *Rate) Get(ctx context.Context) (Quantity, error) {
	resp, err := r.driver.Send(ctx, r.command("rate"))
	if err != nil {
		return Quantity{}, err
	}
	return ParseQuantity(resp.FirstLine())
}

// Set changes the rate. It must be positive and in a l/min unit.
func (r *Rate) Set(ctx context.Context, rate Quantity) error {
	cmd := r.command("rate")
	if err := checkRate(cmd, rate); err != nil {
		return err
	}
	_, err := r.driver.Send(ctx, fmt.Sprintf("%s %s", cmd, rate.Normalize()))
	return err
}

// Limits returns the lowest and highest rate the current syringe allows.
func (r *Rate) Limits(ctx context.Context) (low, high Quantity, err error) {
	resp, err := r.driver.Send(ctx, r.command("rate lim"))
	if err != nil {
		return Quantity{}, Quantity{}, err
	}

	// e.g. ".0404 nl/min to 26.0035 ml/min"
	line := resp.FirstLine()
	low, rest, err := parseLeadingQuantity(line)
	if err != nil {
		return Quantity{}, Quantity{}, err
	}
	if rest, err = afterWord(rest, "to"); err != nil {
		return Quantity{}, Quantity{}, err
	}
	high, err = ParseQuantity(rest)
	if err != nil {
		return Quantity{}, Quantity{}, err
	}
	return low, high, nil
}

// Ramp returns the configured ramp, or nil when none is set up.
func (r *Rate) Ramp(ctx context.Context) (*RampInfo, error) {
	resp, err := r.driver.Send(ctx, r.command("ramp"))
	if err != nil {
		return nil, err
	}

	line := resp.FirstLine()
	if strings.Contains(line, "Ramp not set up") {
		return nil, nil
	}

	// e.g. "100 ul/min to 500 ul/min in 7.5 seconds"
	start, rest, err := parseLeadingQuantity(line)
	if err != nil {
		return nil, err
	}
	if rest, err = afterWord(rest, "to"); err != nil {
		return nil, err
	}
	end, rest, err := parseLeadingQuantity(rest)
	if err != nil {
		return nil, err
	}
	if rest, err = afterWord(rest, "in"); err != nil {
		return nil, err
	}
	seconds, err := ParseQuantity(rest)
	if err != nil {
		return nil, err
	}
	return &RampInfo{
		Start:    start,
		End:      end,
		Duration: time.Duration(seconds.Value * float64(time.Second)),
	}, nil
}

// SetRamp sets up a linear change from start to end over duration.
func (r *Rate) SetRamp(ctx context.Context, start, end Quantity, duration time.Duration) error {
	cmd := r.command("ramp")
	if err := checkRate(cmd, start); err != nil {
		return err
	}
	if err := checkRate(cmd, end); err != nil {
		return err
	}
	if duration <= 0 {
		return protocol.NewValidationError(cmd, "duration must be positive, got %s", duration)
	}
	_, err := r.driver.Send(ctx, fmt.Sprintf("%s %s %s %s", cmd, start.Normalize(), end.Normalize(), formatNumber(duration.Seconds())))
	return err
}

// ResetRamp cancels the ramp by clearing the target time.
func (r *Rate) ResetRamp(ctx context.Context) error {
	_, err := r.driver.Send(ctx, "cttime")
	return err
}

func checkRate(cmd string, rate Quantity) error {
	if rate.BaseUnit() != UnitLitrePerMinute {
		return protocol.NewValidationError(cmd, "rate must be in ml/min, ul/min or nl/min; got %q", rate.Unit)
	}
	if rate.Value <= 0 {
		return protocol.NewValidationError(cmd, "rate must be positive, got %s", rate)
	}
	return nil
}
