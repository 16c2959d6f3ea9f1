package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		command string
		prompt  string
		address int
		message []string
	}{
		{
			name:    "bare prompt",
			raw:     "\r\n:\x11",
			command: "irun",
			prompt:  ":",
			message: []string{},
		},
		{
			name:    "addressed prompt",
			raw:     "\r\n02:\x11",
			prompt:  ":",
			address: 2,
			message: []string{},
		},
		{
			name:    "message then prompt",
			raw:     "\r\n1.5 ml/min\r\n:\x11",
			prompt:  ":",
			message: []string{"1.5 ml/min"},
		},
		{
			name:    "infusing prompt with address",
			raw:     "\r\n12>\x11",
			prompt:  ">",
			address: 12,
			message: []string{},
		},
		{
			name:    "target reached",
			raw:     "\r\nT*\x11",
			prompt:  "T*",
			message: []string{},
		},
		{
			name:    "addressed target reached",
			raw:     "\r\n01T*\x11",
			prompt:  "T*",
			address: 1,
			message: []string{},
		},
		{
			name:    "limit switch withdraw",
			raw:     "\r\n<*\x11",
			prompt:  "<*",
			message: []string{},
		},
		{
			name:    "multi line message",
			raw:     "Firmware: Legato100 3.0.2\r\nPump address: 0\r\nSerial number: 123456\r\n:\x11",
			prompt:  ":",
			message: []string{"Firmware: Legato100 3.0.2", "Pump address: 0", "Serial number: 123456"},
		},
		{
			name:    "time payload is not an address",
			raw:     "10:30:00\r\n:\x11",
			prompt:  ":",
			message: []string{"10:30:00"},
		},
		{
			name:    "same address prefix stripped from message",
			raw:     "03:Argument error: 200\r\n03:\x11",
			prompt:  ":",
			address: 3,
			message: []string{"Argument error: 200"},
		},
		{
			name:    "address change reply",
			raw:     "Pump address set to 2\r\n02:",
			command: "addr 2",
			prompt:  ":",
			address: 2,
			message: []string{"Pump address set to 2"},
		},
		{
			name:    "plain message",
			raw:     "foo\r\n:",
			prompt:  ":",
			message: []string{"foo"},
		},
		{
			name:    "text after addressed prompt is kept",
			raw:     "02:foo\x11",
			prompt:  ":",
			address: 2,
			message: []string{"foo"},
		},
		{
			name:    "own address stripped from time payload",
			raw:     "10:30:00\r\n10:\x11",
			prompt:  ":",
			address: 10,
			message: []string{"30:00"},
		},
		{
			name:    "colon-less address is a literal prompt",
			raw:     "\r\n02\x11",
			prompt:  "02",
			message: []string{},
		},
		{
			name:    "no trailing XON",
			raw:     "\r\n:",
			prompt:  ":",
			message: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse([]byte(tt.raw), tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.prompt, resp.Prompt)
			assert.Equal(t, tt.address, resp.Address)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, tt.command, resp.Command)
		})
	}
}

func TestParseResponse_Empty(t *testing.T) {
	for _, raw := range []string{"", "\x11", "  \r\n\x11", "\r\n"} {
		_, err := ParseResponse([]byte(raw), "irate")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyResponse), "raw %q", raw)
		assert.Contains(t, err.Error(), "irate")
	}
}

func TestParseResponse_InvalidUTF8(t *testing.T) {
	resp, err := ParseResponse([]byte("caf\xff\r\n:\x11"), "dim")
	require.NoError(t, err)
	assert.Equal(t, ":", resp.Prompt)
	require.Len(t, resp.Message, 1)
	assert.Equal(t, "caf\uFFFD", resp.Message[0])
}

func TestParseResponse_RawText(t *testing.T) {
	resp, err := ParseResponse([]byte("  5 ml\r\n:\x11"), "ivolume")
	require.NoError(t, err)
	assert.Equal(t, "5 ml\r\n:", resp.RawText)
	assert.Equal(t, "5 ml", resp.FirstLine())
}

func TestParseResponse_Idempotent(t *testing.T) {
	raws := []string{
		"\r\n:\x11",
		"\r\n1.5 ml/min\r\n:\x11",
		"10:30:00\r\n01>\x11",
		"02:foo\x11",
		"Firmware: Legato100\r\nPump address: 0\r\n:\x11",
	}
	for _, raw := range raws {
		first, err := ParseResponse([]byte(raw), "cmd")
		require.NoError(t, err)
		second, err := ParseResponse([]byte(first.RawText), "cmd")
		require.NoError(t, err)
		assert.Equal(t, first, second, "raw %q", raw)
	}
}

func TestResponse_FirstLineEmpty(t *testing.T) {
	assert.Equal(t, "", Response{}.FirstLine())
}
