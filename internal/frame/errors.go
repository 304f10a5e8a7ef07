package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameIntegrity is the parent of every inbound frame rejection.
	ErrFrameIntegrity = errors.New("frame: integrity check failed")

	// ErrFrameLength is returned when a frame has the wrong size.
	ErrFrameLength = fmt.Errorf("%w: bad length", ErrFrameIntegrity)

	// ErrFrameChecksum is returned when the carried CRC does not match.
	ErrFrameChecksum = fmt.Errorf("%w: checksum mismatch", ErrFrameIntegrity)

	// ErrInvalidCommandType is returned for command types other than text and binary.
	ErrInvalidCommandType = errors.New("frame: invalid command type")
)
