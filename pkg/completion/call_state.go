package completion

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid call state transition")

// CallState is the lifecycle of one call:
// Created -> Processing -> Finished, or Created -> Finished if the call
// was cancelled before anything arrived.
type CallState int

const (
	CallStateCreated = CallState(iota)
	CallStateProcessing
	CallStateFinished
)

func (s CallState) String() string {
	switch s {
	case CallStateCreated:
		return "CREATED"
	case CallStateProcessing:
		return "PROCESSING"
	case CallStateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("<unknown_%d>", int(s))
	}
}

func (s *CallState) Advance(to CallState) error {
	switch {
	case *s == CallStateCreated && to == CallStateProcessing:
	case *s == CallStateCreated && to == CallStateFinished:
	case *s == CallStateProcessing && to == CallStateFinished:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *s, to)
	}
	*s = to
	return nil
}
