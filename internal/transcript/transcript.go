// Package transcript records every command/response exchange of a pump
// session. Recorders implement protocol.Recorder and are attached with
// protocol.WithRecorder.
package transcript

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// Entry is the serialisable form of one exchange.
type Entry struct {
	ID         string    `json:"id" yaml:"id"`
	Session    string    `json:"session,omitempty" yaml:"session,omitempty"`
	Time       time.Time `json:"time" yaml:"time"`
	Command    string    `json:"command" yaml:"command"`
	Frame      string    `json:"frame" yaml:"frame"`
	Address    int       `json:"address" yaml:"address"`
	Prompt     string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Message    []string  `json:"message,omitempty" yaml:"message,omitempty"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS float64   `json:"duration_ms" yaml:"duration_ms"`
}

// OutcomeIOError marks an exchange that produced no parsed response.
const OutcomeIOError = "io error"

// NewEntry converts a driver record into an Entry with a fresh ID.
func NewEntry(rec protocol.Record) Entry {
	e := Entry{
		ID:         uuid.New().String(),
		Time:       rec.Started,
		Command:    rec.Command,
		Frame:      strings.TrimRight(rec.Frame, protocol.LineEnding),
		DurationMS: float64(rec.Duration) / float64(time.Millisecond),
	}
	if rec.Response != nil {
		e.Address = rec.Response.Address
		e.Prompt = rec.Response.Prompt
		e.Message = rec.Response.Message
		e.Outcome = rec.Outcome.String()
	} else {
		e.Outcome = OutcomeIOError
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	return e
}

// Memory keeps entries in memory. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends the exchange.
func (m *Memory) Record(rec protocol.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, NewEntry(rec))
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Reset discards all entries.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// multi fans a record out to several recorders.
type multi []protocol.Recorder

// Multi returns a recorder that forwards to every non-nil recorder in rs.
// All recorders see each record; their errors are joined.
func Multi(rs ...protocol.Recorder) protocol.Recorder {
	var m multi
	for _, r := range rs {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Record(rec protocol.Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
