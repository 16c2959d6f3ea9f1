package pump

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// Volume reads and clears the infused ("i") or withdrawn ("w") volume counter.
// Both commands succeed while the pump reports a state condition, since the
// counter is typically read after a target was reached.
type Volume struct {
	driver *protocol.Driver
	letter string
}

// Get returns the volume dispensed since the counter was last cleared.
func (v *Volume) Get(ctx context.Context) (Quantity, error) {
	res, err := v.driver.SendStateOK(ctx, v.letter+"volume")
	if err != nil {
		return Quantity{}, err
	}
	return ParseQuantity(res.Response.FirstLine())
}

// Clear resets the counter.
func (v *Volume) Clear(ctx context.Context) error {
	_, err := v.driver.SendStateOK(ctx, "c"+v.letter+"volume")
	return err
}

// TargetVolume manages the volume after which the pump stops.
type TargetVolume struct {
	driver *protocol.Driver
}

// Get returns the target volume, or nil when none is set.
func (t *TargetVolume) Get(ctx context.Context) (*Quantity, error) {
	res, err := t.driver.SendStateOK(ctx, "tvolume")
	if err != nil {
		return nil, err
	}
	line := res.Response.FirstLine()
	if strings.Contains(line, "Target volume not set") {
		return nil, nil
	}
	q, err := ParseQuantity(line)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Set changes the target volume. The pump rejects volumes beyond what the
// configured syringe holds; that is reported as ErrInvalidArgument.
func (t *TargetVolume) Set(ctx context.Context, volume Quantity) error {
	if err := checkVolume("tvolume", volume); err != nil {
		return err
	}
	_, err := t.driver.Send(ctx, fmt.Sprintf("tvolume %s", volume.Normalize()))
	var cmdErr *protocol.CommandError
	if errors.As(err, &cmdErr) && strings.Contains(strings.Join(cmdErr.Response.Message, " "), "out of range") {
		return fmt.Errorf("%w: %v", protocol.NewValidationError("tvolume", "target volume %s out of range", volume), err)
	}
	return err
}

// Clear removes the target volume.
func (t *TargetVolume) Clear(ctx context.Context) error {
	_, err := t.driver.SendStateOK(ctx, "ctvolume")
	return err
}

func checkVolume(cmd string, volume Quantity) error {
	if volume.BaseUnit() != UnitLitre {
		return protocol.NewValidationError(cmd, "volume must be in ml, ul or nl; got %q", volume.Unit)
	}
	if volume.Value <= 0 {
		return protocol.NewValidationError(cmd, "volume must be positive, got %s", volume)
	}
	return nil
}
