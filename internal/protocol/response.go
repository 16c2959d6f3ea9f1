// Package protocol implements the prompt-terminated text protocol spoken by
// Legato-class syringe pumps: response framing, prompt classification and the
// request/response session that owns the initialization sequence.
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// XON terminates every response frame once poll mode is enabled.
	XON byte = 0x11

	// LineEnding separates lines in both directions.
	LineEnding = "\r\n"

	// DefaultPrompt is used when a response carries no recognisable prompt.
	DefaultPrompt = ":"
)

// addressPrefix matches an optional device address followed by a status token.
var addressPrefix = regexp.MustCompile(`^(\d{1,2})(:|[><T]\*?|\*)(.*)$`)

// Response is the structured form of one device reply.
type Response struct {
	Command string   `json:"command" yaml:"command"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Address int      `json:"address" yaml:"address"`
	Message []string `json:"message" yaml:"message"`
	RawText string   `json:"raw_text" yaml:"raw_text"`
}

// ParseResponse converts a raw frame read up to XON into a Response.
// It returns ErrEmptyResponse when nothing but the delimiter and whitespace
// was received.
func ParseResponse(raw []byte, command string) (Response, error) {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	text = strings.TrimRight(text, string(rune(XON)))
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{}, fmt.Errorf("%w: command %q", ErrEmptyResponse, command)
	}

	resp := Response{
		Command: command,
		Prompt:  DefaultPrompt,
		RawText: text,
	}

	lines := strings.Split(text, LineEnding)
	last := len(lines) - 1

	var tail string
	if addr, prompt, rest, ok := splitAddress(lines[last]); ok {
		resp.Address = addr
		resp.Prompt = prompt
		tail = rest
	} else {
		resp.Prompt = strings.TrimSpace(lines[last])
	}

	resp.Message = make([]string, 0, last+1)
	for _, line := range lines[:last] {
		// A line starting with the pump's own non-zero address and a status
		// token loses that prefix. With address 10 this also applies to a
		// payload such as "10:30:00", which becomes "30:00".
		if resp.Address > 0 {
			if addr, _, rest, ok := splitAddress(line); ok && addr == resp.Address {
				line = rest
			}
		}
		resp.Message = append(resp.Message, strings.TrimRight(line, "\r"))
	}
	// Text after the prompt on the last line is kept as a message line.
	if strings.TrimSpace(tail) != "" {
		resp.Message = append(resp.Message, strings.TrimSpace(tail))
	}

	return resp, nil
}

// splitAddress separates an address+status prefix from the rest of line.
func splitAddress(line string) (addr int, prompt, rest string, ok bool) {
	m := addressPrefix.FindStringSubmatch(line)
	if m == nil {
		return 0, "", line, false
	}
	addr, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", line, false
	}
	return addr, m[2], m[3], true
}

// String renders the response the way it is useful in logs and errors.
func (r Response) String() string {
	return fmt.Sprintf("command %q: prompt %q, message %q", r.Command, r.Prompt, strings.Join(r.Message, "\n"))
}

// FirstLine returns the first message line, or "" when there is none.
func (r Response) FirstLine() string {
	if len(r.Message) == 0 {
		return ""
	}
	return r.Message[0]
}
