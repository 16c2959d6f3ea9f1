package serial

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"
)

// pollInterval is the per-read timeout set on the device so blocked reads
// wake up to observe cancellation.
const pollInterval = 50 * time.Millisecond

// rawPort is the part of serial.Port a Port relies on.
type rawPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

var openRaw = func(name string, mode *serial.Mode) (rawPort, error) {
	return serial.Open(name, mode)
}

// Port is an open serial connection to one pump. Reads and writes are
// expected to be serialised by the caller; statistics are safe to read
// concurrently.
type Port struct {
	ID     string
	Name   string
	config PortConfig

	port   rawPort
	frames *FrameReader
	mu     sync.Mutex
	closed bool

	statsMu sync.Mutex
	stats   PortStatistics
}

// Open opens the named port with the given configuration.
func Open(name string, config PortConfig) (*Port, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	raw, err := openRaw(name, config.ToSerialMode())
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}

	if err := raw.SetReadTimeout(pollInterval); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return newPort(name, raw, config), nil
}

func newPort(name string, raw rawPort, config PortConfig) *Port {
	now := time.Now()
	p := &Port{
		ID:     uuid.New().String(),
		Name:   name,
		config: config,
		port:   raw,
		stats: PortStatistics{
			OpenedAt:     now,
			LastActivity: now,
		},
	}
	p.frames = NewFrameReader(readerFunc(p.read), config.MaxFrameSize)
	return p
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(b []byte) (int, error) { return f(b) }

func (p *Port) read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n > 0 {
		p.statsMu.Lock()
		p.stats.BytesReceived += uint64(n)
		p.stats.LastActivity = time.Now()
		p.statsMu.Unlock()
	}
	return n, err
}

// Write sends data, giving up after the configured write timeout.
func (p *Port) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrNotOpen
	}
	timeout := p.config.WriteTimeout()
	p.mu.Unlock()

	writeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type writeResult struct {
		n   int
		err error
	}
	resultChan := make(chan writeResult, 1)

	go func() {
		n, err := p.port.Write(data)
		resultChan <- writeResult{n: n, err: err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			p.countError()
			return fmt.Errorf("write failed: %w", result.err)
		}
		p.statsMu.Lock()
		p.stats.BytesSent += uint64(result.n)
		p.stats.LastActivity = time.Now()
		p.statsMu.Unlock()
		return nil
	case <-writeCtx.Done():
		p.countError()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrWriteTimeout
	}
}

// ReadUntil reads one frame terminated by delim, including the delimiter.
// It returns ErrReadTimeout when the configured read timeout passes first.
func (p *Port) ReadUntil(ctx context.Context, delim byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrNotOpen
	}

	var deadline time.Time
	if timeout := p.config.ReadTimeout(); timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	frame, err := p.frames.ReadUntil(ctx, delim, deadline)
	if err != nil {
		p.countError()
		return nil, err
	}

	p.statsMu.Lock()
	p.stats.Frames++
	p.statsMu.Unlock()
	return frame, nil
}

// Flush discards anything received but not yet consumed.
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrNotOpen
	}

	p.frames.Reset()
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	return nil
}

// Close discards pending output and closes the port. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	_ = p.port.ResetOutputBuffer()
	if err := p.port.Close(); err != nil {
		return fmt.Errorf("failed to close port %s: %w", p.Name, err)
	}
	return nil
}

// Statistics returns a snapshot of port usage.
func (p *Port) Statistics() PortStatistics {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Port) countError() {
	p.statsMu.Lock()
	p.stats.Errors++
	p.statsMu.Unlock()
}
