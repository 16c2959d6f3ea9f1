package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Commands sent by Initialise.
const (
	CmdPollOn    = "poll on"
	CmdNVRAMNone = "nvram none"
	CmdNVRAMOff  = "nvram off"
)

const (
	// DefaultPrefix introduces every user command.
	DefaultPrefix = "@"
	// NoAddress disables the two-digit address prefix.
	NoAddress = -1
	// MaxAddress is the highest address a pump accepts.
	MaxAddress = 99

	defaultResyncTimeout = 500 * time.Millisecond
)

// Transport moves bytes to and from the pump.
type Transport interface {
	Write(ctx context.Context, p []byte) error
	ReadUntil(ctx context.Context, delim byte) ([]byte, error)
}

// Flusher is implemented by transports that can discard buffered input.
type Flusher interface {
	Flush() error
}

// State is the lifecycle state of a Driver session.
type State int

const (
	StateUninitialised State = iota
	StateInitialising
	StateReady
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateInitialising:
		return "initialising"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Record describes one completed or failed exchange.
type Record struct {
	Command  string
	Frame    string
	Response *Response
	Outcome  OutcomeKind
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Recorder receives a Record for every exchange the driver performs.
type Recorder interface {
	Record(rec Record) error
}

// Result is returned by SendStateOK. State is non-nil when the prompt
// reported a state condition.
type Result struct {
	Response Response
	State    *StateError
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for exchange diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder attaches a transcript recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// WithCommandPrefix overrides the "@" introducer written before user commands.
func WithCommandPrefix(prefix string) Option {
	return func(d *Driver) { d.prefix = prefix }
}

// WithAddress makes the driver prefix every command with a two-digit address.
func WithAddress(addr int) Option {
	return func(d *Driver) { d.address = addr }
}

// WithResyncTimeout bounds the drain performed after an interrupted exchange.
func WithResyncTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.resyncTimeout = timeout
		}
	}
}

// Driver owns one pump session. All methods are safe for concurrent use;
// exchanges are serialised.
type Driver struct {
	mu            sync.Mutex
	transport     Transport
	logger        *log.Logger
	recorder      Recorder
	prefix        string
	address       int
	resyncTimeout time.Duration

	state      State
	needResync bool
}

// New creates a Driver on top of t. The session starts Uninitialised.
func New(t Transport, opts ...Option) *Driver {
	d := &Driver{
		transport:     t,
		logger:        log.New(io.Discard),
		prefix:        DefaultPrefix,
		address:       NoAddress,
		resyncTimeout: defaultResyncTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current session state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Address returns the address commands are prefixed with, or NoAddress.
func (d *Driver) Address() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

// SetAddress changes the address used for subsequent commands.
func (d *Driver) SetAddress(addr int) error {
	if addr != NoAddress && (addr < 0 || addr > MaxAddress) {
		return NewValidationError("addr", "address must be between 0 and %d, got %d", MaxAddress, addr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.address = addr
	return nil
}

// Reset returns the session to Uninitialised. Commands fail with
// ErrNotInitialised until Initialise runs again.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateUninitialised
}

// Initialise enables poll mode and disables persistent storage of settings.
// Pumps whose firmware does not know "nvram none" are retried once with
// "nvram off".
func (d *Driver) Initialise(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateReady {
		return ErrAlreadyInitialised
	}
	d.state = StateInitialising

	if err := d.initCommand(ctx, CmdPollOn); err != nil {
		return fmt.Errorf("failed to enable poll mode: %w", err)
	}

	err := d.initCommand(ctx, CmdNVRAMNone)
	if errors.Is(err, ErrCommand) {
		d.logger.Warn("storage disable rejected, retrying", "command", CmdNVRAMNone, "retry", CmdNVRAMOff, "err", err)
		err = d.initCommand(ctx, CmdNVRAMOff)
	}
	if err != nil {
		return fmt.Errorf("failed to disable settings storage: %w", err)
	}

	d.state = StateReady
	d.logger.Debug("pump session initialised", "address", d.address)
	return nil
}

// initCommand sends one setup command. A state prompt only describes the
// motor, so it is accepted; command errors and I/O failures are not.
func (d *Driver) initCommand(ctx context.Context, cmd string) error {
	out, err := d.exchange(ctx, cmd, "")
	if err != nil {
		return err
	}
	if out.Kind == OutcomeStateError {
		d.logger.Warn("pump reports a state condition during setup", "command", cmd, "state", out.State, "prompt", out.Response.Prompt)
		return nil
	}
	return out.Err()
}

// Send performs one exchange and converts every non-success outcome into an error.
func (d *Driver) Send(ctx context.Context, cmd string) (Response, error) {
	out, err := d.Exchange(ctx, cmd)
	if err != nil {
		return Response{}, err
	}
	if err := out.Err(); err != nil {
		return out.Response, err
	}
	return out.Response, nil
}

// SendStateOK is like Send but reports state conditions in the Result
// instead of failing. Command errors are still returned as errors.
func (d *Driver) SendStateOK(ctx context.Context, cmd string) (Result, error) {
	out, err := d.Exchange(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	switch out.Kind {
	case OutcomeCommandError:
		return Result{Response: out.Response}, out.Err()
	case OutcomeStateError:
		return Result{Response: out.Response, State: out.StateErr()}, nil
	default:
		return Result{Response: out.Response}, nil
	}
}

// Exchange sends cmd and returns the classified outcome. Only transport
// failures, empty responses and an uninitialised session are errors.
func (d *Driver) Exchange(ctx context.Context, cmd string) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return Outcome{}, fmt.Errorf("%w: command %q", ErrNotInitialised, cmd)
	}
	return d.exchange(ctx, cmd, d.prefix)
}

// frame builds the wire form of cmd. The caller holds d.mu.
func (d *Driver) frame(cmd, prefix string) string {
	addr := ""
	if d.address != NoAddress {
		addr = fmt.Sprintf("%02d", d.address)
	}
	return addr + prefix + cmd + LineEnding
}

// exchange writes one command and reads its frame. The caller holds d.mu.
func (d *Driver) exchange(ctx context.Context, cmd, prefix string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if d.needResync {
		if err := d.resync(ctx); err != nil {
			return Outcome{}, err
		}
	}

	frame := d.frame(cmd, prefix)
	rec := Record{Command: cmd, Frame: frame, Started: time.Now()}

	out, err := d.roundTrip(ctx, cmd, frame)
	rec.Duration = time.Since(rec.Started)
	rec.Err = err
	if err == nil {
		rec.Response = &out.Response
		rec.Outcome = out.Kind
		d.logger.Debug("exchange",
			"command", cmd,
			"prompt", out.Response.Prompt,
			"address", out.Response.Address,
			"outcome", out.Kind,
			"duration", rec.Duration)
	} else {
		d.logger.Debug("exchange failed", "command", cmd, "err", err, "duration", rec.Duration)
	}
	d.record(rec)
	return out, err
}

func (d *Driver) roundTrip(ctx context.Context, cmd, frame string) (Outcome, error) {
	if err := d.transport.Write(ctx, []byte(frame)); err != nil {
		d.needResync = true
		return Outcome{}, fmt.Errorf("failed to write %q: %w", cmd, err)
	}
	raw, err := d.transport.ReadUntil(ctx, XON)
	if err != nil {
		d.needResync = true
		return Outcome{}, fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}
	resp, err := ParseResponse(raw, cmd)
	if err != nil {
		return Outcome{}, err
	}
	return Classify(resp), nil
}

// resync discards a frame left over from an interrupted exchange. A
// timeout means nothing was pending. The caller holds d.mu.
func (d *Driver) resync(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, d.resyncTimeout)
	defer cancel()

	stale, err := d.transport.ReadUntil(drainCtx, XON)
	if err != nil && !isTimeout(err) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrResyncFailed, err)
	}
	if f, ok := d.transport.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: %v", ErrResyncFailed, err)
		}
	}
	d.logger.Warn("resynchronised pump session", "discarded", strconv.Quote(string(stale)))
	d.needResync = false
	return nil
}

func (d *Driver) record(rec Record) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(rec); err != nil {
		d.logger.Warn("failed to record exchange", "command", rec.Command, "err", err)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
