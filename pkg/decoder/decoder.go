// Package decoder defines the boundary to speech decoding engines.
package decoder

import (
	"context"
	"io"
)

// Engine creates per-session decoding states.
type Engine interface {
	io.Closer
	NewState(ctx context.Context, sessionToken string) (State, error)
}

// State is the session-scoped decoding progress of an Engine. It is not
// safe for concurrent use: calls must be serialized by the caller.
type State interface {
	io.Closer

	// Decode feeds the next audio chunk of the session (S16LE) and returns
	// the transcript text produced so far for it.
	Decode(ctx context.Context, audio []byte) (string, error)
}
