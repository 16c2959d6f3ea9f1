// Package pump exposes the commands of a Legato-class syringe pump on top
// of a protocol.Driver session.
package pump

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// Defaults applied by Open and Close.
const (
	DefaultQuickStartMode = "iw"
	DefaultExitBrightness = 15
	clockLayout           = "01/02/06 15:04:05"
)

var quickStartModes = map[string]bool{"i": true, "w": true, "iw": true, "wi": true}

// VersionInfo is the pump's answer to "version".
type VersionInfo struct {
	Firmware     string            `json:"firmware" yaml:"firmware"`
	Address      int               `json:"address" yaml:"address"`
	SerialNumber string            `json:"serial_number" yaml:"serial_number"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Option configures a Pump.
type Option func(*Pump)

// WithLogger sets the logger for non-fatal failures.
func WithLogger(l *log.Logger) Option {
	return func(p *Pump) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithQuickStartMode sets the mode Open selects. An empty mode skips it.
func WithQuickStartMode(mode string) Option {
	return func(p *Pump) { p.quickStartMode = mode }
}

// WithClockSync controls whether Open sets the pump clock.
func WithClockSync(enabled bool) Option {
	return func(p *Pump) { p.syncClock = enabled }
}

// WithClock overrides the time source used to set the pump clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) { p.now = now }
}

// WithExitBrightness sets the display brightness restored by Close.
func WithExitBrightness(level int) Option {
	return func(p *Pump) { p.exitBrightness = level }
}

// Pump is a high-level handle on one pump session.
type Pump struct {
	driver *protocol.Driver
	logger *log.Logger

	quickStartMode string
	syncClock      bool
	exitBrightness int
	now            func() time.Time

	InfusionRate    *Rate
	WithdrawalRate  *Rate
	InfusedVolume   *Volume
	WithdrawnVolume *Volume
	TargetVolume    *TargetVolume
	TargetTime      *TargetTime
	Syringe         *Syringe
}

// New wraps d. Call Open before issuing commands.
func New(d *protocol.Driver, opts ...Option) *Pump {
	p := &Pump{
		driver:         d,
		logger:         log.New(io.Discard),
		quickStartMode: DefaultQuickStartMode,
		syncClock:      true,
		exitBrightness: DefaultExitBrightness,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.InfusionRate = &Rate{driver: d, letter: "i"}
	p.WithdrawalRate = &Rate{driver: d, letter: "w"}
	p.InfusedVolume = &Volume{driver: d, letter: "i"}
	p.WithdrawnVolume = &Volume{driver: d, letter: "w"}
	p.TargetVolume = &TargetVolume{driver: d}
	p.TargetTime = &TargetTime{driver: d}
	p.Syringe = &Syringe{driver: d}
	return p
}

// Driver returns the underlying session.
func (p *Pump) Driver() *protocol.Driver {
	return p.driver
}

// Open initialises the session, selects the quick start mode and sets the
// pump clock to the host's local time.
func (p *Pump) Open(ctx context.Context) error {
	if err := p.driver.Initialise(ctx); err != nil {
		return err
	}
	if p.quickStartMode != "" {
		if err := p.SetQuickStartMode(ctx, p.quickStartMode); err != nil {
			return err
		}
	}
	if p.syncClock {
		if _, err := p.SetClock(ctx, p.now()); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the motor, restores the display brightness and resets the
// session, so Open must run again before further commands. A failure to
// restore brightness is logged rather than returned.
func (p *Pump) Close(ctx context.Context) error {
	if err := p.Stop(ctx); err != nil {
		return err
	}
	if err := p.SetBrightness(ctx, p.exitBrightness); err != nil {
		p.logger.Error("failed to reset display brightness on exit", "err", err)
	}
	p.driver.Reset()
	return nil
}

// Run starts the motor in the given direction.
func (p *Pump) Run(ctx context.Context, dir protocol.Direction) error {
	var cmd string
	switch dir {
	case protocol.DirectionInfuse:
		cmd = "irun"
	case protocol.DirectionWithdraw:
		cmd = "wrun"
	default:
		return protocol.NewValidationError("run", "direction must be infuse or withdraw, got %s", dir)
	}
	_, err := p.driver.Send(ctx, cmd)
	return err
}

// ParseDirection converts "infuse" or "withdraw" into a Direction.
func ParseDirection(s string) (protocol.Direction, error) {
	switch strings.ToLower(s) {
	case "infuse", "i":
		return protocol.DirectionInfuse, nil
	case "withdraw", "w":
		return protocol.DirectionWithdraw, nil
	default:
		return protocol.DirectionNone, protocol.NewValidationError("run", "unknown direction %q", s)
	}
}

// Stop halts the motor. Stopping is accepted whatever state the prompt reports.
func (p *Pump) Stop(ctx context.Context) error {
	_, err := p.driver.SendStateOK(ctx, "stp")
	return err
}

// SetBrightness sets the display brightness, 0 to 100.
func (p *Pump) SetBrightness(ctx context.Context, level int) error {
	if level < 0 || level > 100 {
		return protocol.NewValidationError("dim", "brightness must be between 0 and 100, got %d", level)
	}
	_, err := p.driver.Send(ctx, fmt.Sprintf("dim %d", level))
	return err
}

// Version queries firmware, address and serial number.
func (p *Pump) Version(ctx context.Context) (VersionInfo, error) {
	resp, err := p.driver.Send(ctx, "version")
	if err != nil {
		return VersionInfo{}, err
	}

	info := VersionInfo{Extra: map[string]string{}}
	for _, line := range resp.Message {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		switch key {
		case "Firmware":
			info.Firmware = val
		case "Pump address":
			addr, err := strconv.Atoi(val)
			if err != nil {
				return VersionInfo{}, fmt.Errorf("invalid pump address %q in version: %w", val, err)
			}
			info.Address = addr
		case "Serial number":
			info.SerialNumber = val
		default:
			info.Extra[key] = val
		}
	}
	if info.Firmware == "" {
		return VersionInfo{}, fmt.Errorf("unexpected version response: %s", resp)
	}
	if len(info.Extra) == 0 {
		info.Extra = nil
	}
	return info, nil
}

// Force returns the motor force limit in percent.
func (p *Pump) Force(ctx context.Context) (int, error) {
	resp, err := p.driver.Send(ctx, "force")
	if err != nil {
		return 0, err
	}
	val := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(resp.FirstLine()), "%"))
	force, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid force %q: %w", resp.FirstLine(), err)
	}
	return force, nil
}

// SetForce sets the motor force limit in percent, 0 to 100.
func (p *Pump) SetForce(ctx context.Context, force int) error {
	if force < 0 || force > 100 {
		return protocol.NewValidationError("force", "force must be between 0 and 100, got %d", force)
	}
	_, err := p.driver.Send(ctx, fmt.Sprintf("force %d", force))
	return err
}

// SetAddress changes the pump's network address and returns the address
// reported in the response. A driver that prefixes commands with an
// address follows the change.
func (p *Pump) SetAddress(ctx context.Context, addr int) (int, error) {
	if addr < 0 || addr > protocol.MaxAddress {
		return 0, protocol.NewValidationError("addr", "address must be between 0 and %d, got %d", protocol.MaxAddress, addr)
	}
	resp, err := p.driver.Send(ctx, fmt.Sprintf("addr %d", addr))
	if err != nil {
		return 0, err
	}
	if p.driver.Address() != protocol.NoAddress {
		if err := p.driver.SetAddress(resp.Address); err != nil {
			return 0, err
		}
	}
	return resp.Address, nil
}

// SetClock sets the pump's real time clock and returns the time it echoed.
// It succeeds whatever motion state the prompt reports.
func (p *Pump) SetClock(ctx context.Context, t time.Time) (string, error) {
	res, err := p.driver.SendStateOK(ctx, "time "+t.Format(clockLayout))
	if err != nil {
		return "", err
	}
	return res.Response.FirstLine(), nil
}

// QuickStartMode returns the pump's description of the current quick start mode.
func (p *Pump) QuickStartMode(ctx context.Context) (string, error) {
	resp, err := p.driver.Send(ctx, "load")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.FirstLine()), nil
}

// SetQuickStartMode enables infusion ("i"), withdrawal ("w") or both ("iw", "wi").
// A stalled or finished pump still accepts the mode.
func (p *Pump) SetQuickStartMode(ctx context.Context, mode string) error {
	if !quickStartModes[mode] {
		return protocol.NewValidationError("load qs", "mode must be one of i, w, iw, wi; got %q", mode)
	}
	_, err := p.driver.SendStateOK(ctx, "load qs "+mode)
	return err
}
