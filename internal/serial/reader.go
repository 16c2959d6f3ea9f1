package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const defaultChunkSize = 256

// FrameReader splits a byte stream into delimiter-terminated frames.
// Bytes received after a delimiter are kept for the next frame.
//
// The source may return (0, nil) to signal that its per-read timeout
// elapsed; FrameReader uses those wake-ups to check the context and the
// frame deadline.
type FrameReader struct {
	src      io.Reader
	buffer   []byte
	chunk    []byte
	maxFrame int
}

// NewFrameReader creates a FrameReader over src. maxFrameSize <= 0 means no limit.
func NewFrameReader(src io.Reader, maxFrameSize int) *FrameReader {
	return &FrameReader{
		src:      src,
		buffer:   make([]byte, 0, defaultChunkSize),
		chunk:    make([]byte, defaultChunkSize),
		maxFrame: maxFrameSize,
	}
}

// ReadUntil returns the next frame including its delimiter. A zero deadline
// waits until ctx is done.
func (fr *FrameReader) ReadUntil(ctx context.Context, delim byte, deadline time.Time) ([]byte, error) {
	for {
		if i := bytes.IndexByte(fr.buffer, delim); i >= 0 {
			frame := make([]byte, i+1)
			copy(frame, fr.buffer[:i+1])
			fr.buffer = fr.buffer[:copy(fr.buffer, fr.buffer[i+1:])]
			return frame, nil
		}

		if fr.maxFrame > 0 && len(fr.buffer) > fr.maxFrame {
			fr.buffer = fr.buffer[:0]
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, fr.maxFrame)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, ErrReadTimeout
		}

		n, err := fr.src.Read(fr.chunk)
		if n > 0 {
			fr.buffer = append(fr.buffer, fr.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNotOpen
			}
			return nil, fmt.Errorf("read failed: %w", err)
		}
	}
}

// Reset discards buffered bytes.
func (fr *FrameReader) Reset() {
	fr.buffer = fr.buffer[:0]
}
