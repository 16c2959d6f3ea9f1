package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

// YAMLRecorder writes one YAML document per exchange.
type YAMLRecorder struct {
	mu      sync.Mutex
	enc     *yaml.Encoder
	closer  io.Closer
	session string
}

// NewYAMLRecorder writes entries to w, stamping them with session.
func NewYAMLRecorder(w io.Writer, session string) *YAMLRecorder {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLRecorder{enc: enc, session: session}
}

// OpenYAMLFile appends entries to the file at path, creating it and its
// directory if needed.
func OpenYAMLFile(path, session string) (*YAMLRecorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	// The encoder omits the separator before its first document.
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		if _, err := io.WriteString(f, "---\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write transcript file: %w", err)
		}
	}
	r := NewYAMLRecorder(f, session)
	r.closer = f
	return r, nil
}

// Record encodes the exchange as a new document.
func (r *YAMLRecorder) Record(rec protocol.Record) error {
	e := NewEntry(rec)
	e.Session = r.session

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write transcript entry: %w", err)
	}
	return nil
}

// Close flushes the encoder and closes the file opened by OpenYAMLFile.
func (r *YAMLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.enc.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}

// ReadYAML decodes every entry from a transcript written by YAMLRecorder.
func ReadYAML(rd io.Reader) ([]Entry, error) {
	dec := yaml.NewDecoder(rd)
	var entries []Entry
	for {
		var e Entry
		err := dec.Decode(&e)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("failed to read transcript: %w", err)
		}
		entries = append(entries, e)
	}
}
