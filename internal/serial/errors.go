package serial

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNotOpen is returned when operations are attempted on a closed connection
	ErrNotOpen = errors.New("serial port is not open")

	// ErrInvalidConfig is returned when a port configuration is rejected
	ErrInvalidConfig = errors.New("invalid serial configuration")

	// ErrPortNotFound is returned when a named port is not present on the system
	ErrPortNotFound = errors.New("serial port not found")

	// ErrFrameTooLarge is returned when no delimiter arrives within the frame size limit
	ErrFrameTooLarge = errors.New("response frame exceeds maximum size")

	// ErrReadTimeout is returned when no delimiter arrives within the read timeout.
	// It matches os.ErrDeadlineExceeded.
	ErrReadTimeout = fmt.Errorf("serial read timed out: %w", os.ErrDeadlineExceeded)

	// ErrWriteTimeout is returned when a write does not complete within the write timeout.
	// It matches os.ErrDeadlineExceeded.
	ErrWriteTimeout = fmt.Errorf("serial write timed out: %w", os.ErrDeadlineExceeded)
)
