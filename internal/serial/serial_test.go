package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func TestFrameReader(t *testing.T) {
	fr := NewFrameReader(bytes.NewBufferString("a\x11bb\x11c"), 0)

	frame, err := fr.ReadUntil(context.Background(), 0x11, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "a\x11", string(frame))

	frame, err = fr.ReadUntil(context.Background(), 0x11, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "bb\x11", string(frame))
	assert.Len(t, fr.buffer, 1)

	// The source is exhausted before the next delimiter.
	_, err = fr.ReadUntil(context.Background(), 0x11, time.Time{})
	assert.True(t, errors.Is(err, ErrNotOpen))
}

func TestFrameReader_TooLarge(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(bytes.Repeat([]byte("x"), 64)), 16)

	_, err := fr.ReadUntil(context.Background(), 0x11, time.Time{})
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.Empty(t, fr.buffer)
}

func TestFrameReader_Deadline(t *testing.T) {
	fr := NewFrameReader(idleReader{}, 0)

	_, err := fr.ReadUntil(context.Background(), 0x11, time.Now().Add(10*time.Millisecond))
	assert.True(t, errors.Is(err, ErrReadTimeout))
}

type idleReader struct{}

func (idleReader) Read([]byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

var _ io.Reader = idleReader{}

func TestPortConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*PortConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(*PortConfig) {}},
		{name: "zero baud", modify: func(c *PortConfig) { c.BaudRate = 0 }, wantErr: true},
		{name: "low baud", modify: func(c *PortConfig) { c.BaudRate = 110 }, wantErr: true},
		{name: "custom baud", modify: func(c *PortConfig) { c.BaudRate = 250000 }},
		{name: "data bits", modify: func(c *PortConfig) { c.DataBits = 4 }, wantErr: true},
		{name: "stop bits", modify: func(c *PortConfig) { c.StopBits = StopBits(7) }, wantErr: true},
		{name: "parity", modify: func(c *PortConfig) { c.Parity = Parity(9) }, wantErr: true},
		{name: "software flow control", modify: func(c *PortConfig) { c.FlowControl = FlowControlSoftware }, wantErr: true},
		{name: "hardware flow control", modify: func(c *PortConfig) { c.FlowControl = FlowControlHardware }, wantErr: true},
		{name: "unknown flow control", modify: func(c *PortConfig) { c.FlowControl = FlowControl(5) }, wantErr: true},
		{name: "negative timeout", modify: func(c *PortConfig) { c.ReadTimeoutMs = -1 }, wantErr: true},
		{name: "negative frame size", modify: func(c *PortConfig) { c.MaxFrameSize = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPortConfig_ToSerialMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Parity = ParityEven
	cfg.StopBits = StopBits2

	mode := cfg.ToSerialMode()
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout())
}

func TestParse(t *testing.T) {
	p, err := ParseParity("Odd")
	require.NoError(t, err)
	assert.Equal(t, ParityOdd, p)
	_, err = ParseParity("sideways")
	assert.Error(t, err)

	f, err := ParseFlowControl("rts/cts")
	require.NoError(t, err)
	assert.Equal(t, FlowControlHardware, f)
	assert.Equal(t, "hardware", f.String())

	s, err := ParseStopBits(2)
	require.NoError(t, err)
	assert.Equal(t, "2", s.String())
	_, err = ParseStopBits(3)
	assert.Error(t, err)
}

func TestScanner(t *testing.T) {
	s, err := NewScanner([]string{`^/dev/ttyS\d+$`})
	require.NoError(t, err)

	s.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "Legato 100"},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true},
		}, nil
	}

	ports, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)
	assert.Equal(t, "USB Serial Device", ports[0].Description)
	assert.Equal(t, "/dev/ttyUSB0", ports[1].Name)
	assert.Equal(t, "Legato 100", ports[1].Description)
	assert.Equal(t, `USB\VID_0403&PID_6001`, ports[1].HardwareID)
	assert.Equal(t, PortTypeUSB, ports[1].PortType)
	port, err := s.GetPort("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "Legato 100", port.Description)

	_, err = s.GetPort("/dev/ttyS0")
	assert.True(t, errors.Is(err, ErrPortNotFound))

	_, err = s.GetPort("/dev/ttyUSB7")
	assert.True(t, errors.Is(err, ErrPortNotFound))

	_, err = NewScanner([]string{"("})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestScanner_WatchPorts(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	s.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "/dev/ttyUSB0", IsUSB: true}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	var added []PortInfo
	s.WatchPorts(ctx, time.Millisecond, func(a, _ []PortInfo, _ []PortInfo) {
		added = append(added, a...)
		cancel()
	})

	require.Len(t, added, 1)
	assert.Equal(t, "/dev/ttyUSB0", added[0].Name)
}
