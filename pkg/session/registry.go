// Package session maps session tokens to decoder states.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/speechstream/pkg/decoder"
)

var (
	ErrEmptyToken = errors.New("empty session token")
	ErrClosed     = errors.New("the session registry is closed")
)

// Session is the decoding context of one client stream. Decode calls
// on the same Session are serialized; different sessions decode concurrently.
type Session struct {
	token  string
	locker sync.Mutex
	state  decoder.State
}

func (s *Session) Token() string {
	return s.token
}

func (s *Session) Decode(ctx context.Context, audio []byte) (string, error) {
	logger.Tracef(ctx, "session '%s': waiting for the lock", s.token)
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.state.Decode(ctx, audio)
}

func (s *Session) close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.state.Close()
}

// Registry owns all the sessions. Sessions are never evicted: they live
// until the Registry is closed.
type Registry struct {
	Engine decoder.Engine

	locker      sync.Mutex
	sessions    map[string]*Session
	placeholder *Session
	isClosed    bool
}

// NewRegistry creates a registry. If prewarm is set, one decoder state is
// created right away and is handed to the first session that appears.
func NewRegistry(
	ctx context.Context,
	engine decoder.Engine,
	prewarm bool,
) (*Registry, error) {
	r := &Registry{
		Engine:   engine,
		sessions: map[string]*Session{},
	}
	if prewarm {
		state, err := engine.NewState(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("unable to pre-create a decoder state: %w", err)
		}
		r.placeholder = &Session{state: state}
	}
	return r, nil
}

// Resolve returns the session of the token, creating it if needed. Concurrent
// first-time calls with the same token get the same Session.
func (r *Registry) Resolve(
	ctx context.Context,
	token string,
) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	if r.isClosed {
		return nil, ErrClosed
	}

	if r.placeholder != nil {
		s := r.placeholder
		r.placeholder = nil
		s.token = token
		r.sessions[token] = s
		logger.Debugf(ctx, "session '%s' took the pre-created decoder state", token)
		return s, nil
	}

	if s, ok := r.sessions[token]; ok {
		return s, nil
	}

	state, err := r.Engine.NewState(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("unable to create a decoder state for session '%s': %w", token, err)
	}
	s := &Session{
		token: token,
		state: state,
	}
	r.sessions[token] = s
	logger.Debugf(ctx, "new session '%s' (total: %d)", token, len(r.sessions))
	return s, nil
}

func (r *Registry) Len() int {
	r.locker.Lock()
	defer r.locker.Unlock()
	return len(r.sessions)
}

// Close closes the decoder states of all the sessions.
func (r *Registry) Close() error {
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.isClosed {
		return nil
	}
	r.isClosed = true

	var mErr *multierror.Error
	if r.placeholder != nil {
		if err := r.placeholder.close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the pre-created state: %w", err))
		}
		r.placeholder = nil
	}
	for token, s := range r.sessions {
		if err := s.close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close session '%s': %w", token, err))
		}
	}
	r.sessions = nil
	return mErr.ErrorOrNil()
}
