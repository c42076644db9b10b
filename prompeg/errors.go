// Package prompeg implements the core of a Pro-MPEG Code of Practice #3
// Release 2 forward error correction engine for MPEG-TS-over-RTP streams.
package prompeg

import "github.com/pkg/errors"

// Sentinel error kinds raised by the core. Callers should match with
// errors.Is, since internal plumbing wraps these with errors.WithStack.
var (
	// ErrInvalidFormat is returned when a media packet fails the V/P/PT
	// checks, is shorter than an RTP header, or changes size mid-stream.
	ErrInvalidFormat = errors.New("prompeg: invalid packet format")

	// ErrInvalidArgument is returned when constructor or call parameters
	// are outside their documented bounds.
	ErrInvalidArgument = errors.New("prompeg: invalid argument")

	// ErrOutOfMemory names the allocation-failure kind. No function in
	// this package returns it.
	ErrOutOfMemory = errors.New("prompeg: out of memory")

	// ErrWouldBlock is returned when the decoder has no packet ready to
	// emit yet.
	ErrWouldBlock = errors.New("prompeg: would block")

	// ErrInterrupted is returned when a caller-supplied cancellation
	// signal fires during a FEC read path.
	ErrInterrupted = errors.New("prompeg: interrupted")

	// ErrTransport names the sink/source failure kind. No function in
	// this package returns it: Encoder wraps a sink error with
	// errors.Wrap, so the result does not match ErrTransport.
	ErrTransport = errors.New("prompeg: transport error")
)
