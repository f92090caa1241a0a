// Package errors holds the sentinel errors shared across doorlock packages.
// Callers compare with errors.Is; producers wrap with fmt.Errorf("...: %w").
package errors

import "errors"

var (
	// ErrBusy is returned when the arbiter already has an instruction in
	// flight. It is local to the submitting producer.
	ErrBusy = errors.New("doorlock: lock in use")
	// ErrRangingTimeout is returned when an echo edge is not observed
	// within the configured bound.
	ErrRangingTimeout = errors.New("doorlock: ranging timed out")
	// ErrConfiguration marks an unsafe or inconsistent configuration.
	ErrConfiguration = errors.New("doorlock: invalid configuration")
	// ErrQueueProtocol marks a breach of the arbiter's queue protocol.
	ErrQueueProtocol = errors.New("doorlock: queue protocol violation")
	// ErrActuation is returned when the hardware fails mid-actuation.
	ErrActuation = errors.New("doorlock: actuation failed")
	// ErrInvalidInstruction is returned for instructions that cannot be submitted.
	ErrInvalidInstruction = errors.New("doorlock: invalid instruction")
	// ErrStopped is returned when no coordinator will consume the instruction.
	ErrStopped = errors.New("doorlock: coordinator stopped")

	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
)
