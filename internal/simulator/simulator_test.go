package simulator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

func exchange(t *testing.T, p *Pump, line string) string {
	t.Helper()
	require.NoError(t, p.Write(context.Background(), []byte(line+protocol.LineEnding)))
	raw, err := p.ReadUntil(context.Background(), protocol.XON)
	require.NoError(t, err)
	return string(raw)
}

func TestPump_PollMode(t *testing.T) {
	p := New(DefaultConfig())

	// Without poll mode replies carry no XON.
	require.NoError(t, p.Write(context.Background(), []byte("version\r\n")))
	_, err := p.ReadUntil(context.Background(), protocol.XON)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	require.NoError(t, p.Flush())

	assert.Equal(t, "\r\n:\x11", exchange(t, p, "poll on"))
	assert.Equal(t, []string{"version", "poll on"}, p.Writes())
}

func TestPump_NVRAMRevisions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RejectNVRAMNone = true
	p := New(cfg)
	exchange(t, p, "poll on")

	assert.Equal(t, "\r\nArgument error: none\r\n:\x11", exchange(t, p, "nvram none"))
	assert.Equal(t, "\r\n:\x11", exchange(t, p, "nvram off"))
	assert.Equal(t, "\r\nNVRAM off\r\n:\x11", exchange(t, p, "nvram"))
}

func TestPump_Address(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = 3
	p := New(cfg)
	exchange(t, p, "03poll on")

	assert.Equal(t, "\r\nPump address set to 4\r\n04:\x11", exchange(t, p, "03@addr 4"))

	// Commands for other addresses are ignored.
	require.NoError(t, p.Write(context.Background(), []byte("03@irun\r\n")))
	_, err := p.ReadUntil(context.Background(), protocol.XON)
	assert.Error(t, err)
}

func TestPump_RunStates(t *testing.T) {
	p := New(DefaultConfig())
	exchange(t, p, "poll on")
	exchange(t, p, "@load qs iw")

	assert.Equal(t, "\r\n>\x11", exchange(t, p, "@irun"))
	p.Stall()
	assert.Equal(t, "\r\n*\x11", exchange(t, p, "@irate 2 ml/min"))
	assert.Equal(t, "\r\n:\x11", exchange(t, p, "@stp"))

	assert.Equal(t, "\r\n<\x11", exchange(t, p, "@wrun"))
	p.HitLimit(protocol.DirectionWithdraw)
	assert.Equal(t, "\r\n0 ul\r\n<*\x11", exchange(t, p, "@wvolume"))
	exchange(t, p, "@stp")

	exchange(t, p, "@tvolume 1 ml")
	exchange(t, p, "@irun")
	p.Advance(time.Minute)
	assert.Equal(t, "\r\n1 ml\r\nT*\x11", exchange(t, p, "@ivolume"))
}

func TestPump_Errors(t *testing.T) {
	p := New(DefaultConfig())
	exchange(t, p, "poll on")

	assert.Equal(t, "\r\nCommand error: bogus\r\n:\x11", exchange(t, p, "@bogus"))
	assert.Equal(t, "\r\nArgument error: 200\r\n:\x11", exchange(t, p, "@dim 200"))
	assert.Contains(t, exchange(t, p, "@tvolume 2000 ml"), "out of range")
	assert.Contains(t, exchange(t, p, "@syrmanu bdp 7 ml"), "Unknown syringe")
}

func TestPump_Inject(t *testing.T) {
	p := New(DefaultConfig())
	p.Inject("stale\x11")

	raw, err := p.ReadUntil(context.Background(), protocol.XON)
	require.NoError(t, err)
	assert.Equal(t, "stale\x11", string(raw))
}
