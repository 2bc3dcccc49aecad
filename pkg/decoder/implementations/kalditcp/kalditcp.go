// Package kalditcp is an Engine backed by an external decoding daemon
// speaking the online2-tcp-nnet3-decode-faster protocol: the client streams
// raw S16LE audio over a TCP connection and the daemon writes back
// newline-separated transcript lines whenever it has any.
//
// Every session gets its own connection, so the daemon keeps the
// session's decoding progress. If the daemon drops the connection, the
// next Decode dials again, and the session restarts from scratch on the
// daemon side.
package kalditcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/speechstream/pkg/decoder"
)

type Config struct {
	Address     string        `yaml:"address"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadWindow is for how long the output of the daemon is collected
	// after a chunk is sent.
	ReadWindow time.Duration `yaml:"read_window"`
}

func DefaultConfig() Config {
	return Config{
		Address:     "localhost:5051",
		DialTimeout: 5 * time.Second,
		ReadWindow:  200 * time.Millisecond,
	}
}

type Engine struct {
	Config Config
}

var _ decoder.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("the address of the decoding daemon is not set")
	}
	if cfg.ReadWindow <= 0 {
		return nil, fmt.Errorf("read window must be positive, but it is %s", cfg.ReadWindow)
	}
	return &Engine{Config: cfg}, nil
}

func (e *Engine) NewState(ctx context.Context, sessionToken string) (_ decoder.State, _err error) {
	logger.Debugf(ctx, "NewState: '%s' -> %s", sessionToken, e.Config.Address)
	defer func() { logger.Debugf(ctx, "/NewState: '%s' -> %s: %v", sessionToken, e.Config.Address, _err) }()

	s := &State{
		config:       e.Config,
		sessionToken: sessionToken,
		readBuf:      make([]byte, 4096),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) Close() error {
	return nil
}

type State struct {
	config       Config
	sessionToken string
	readBuf      []byte

	// conn is nil after the connection broke.
	conn net.Conn
}

var _ decoder.State = (*State)(nil)

func (s *State) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("unable to connect to the decoding daemon at %s: %w", s.config.Address, err)
	}
	s.conn = conn
	return nil
}

func (s *State) disconnect() {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
}

func (s *State) Decode(ctx context.Context, audio []byte) (_ string, _err error) {
	logger.Tracef(ctx, "Decode: '%s' %d bytes", s.sessionToken, len(audio))
	defer func() { logger.Tracef(ctx, "/Decode: '%s': %v", s.sessionToken, _err) }()

	isReconnect := s.conn == nil
	text, err := s.exchange(ctx, audio)
	if err == nil || isReconnect {
		return text, err
	}
	logger.Warnf(ctx, "the connection of session '%s' to the decoding daemon broke (%v), reconnecting", s.sessionToken, err)
	return s.exchange(ctx, audio)
}

// exchange sends the audio and collects the output of the daemon for
// the read window. On a connection failure without any output it
// disconnects and returns an error.
func (s *State) exchange(ctx context.Context, audio []byte) (string, error) {
	if err := s.connect(ctx); err != nil {
		return "", err
	}

	deadline := time.Now().Add(s.config.ReadWindow)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.disconnect()
		return "", fmt.Errorf("unable to set the write deadline: %w", err)
	}
	if _, err := s.conn.Write(audio); err != nil {
		s.disconnect()
		return "", fmt.Errorf("unable to send the audio: %w", err)
	}

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		s.disconnect()
		return "", fmt.Errorf("unable to set the read deadline: %w", err)
	}
	var result strings.Builder
	for {
		n, err := s.conn.Read(s.readBuf)
		result.Write(s.readBuf[:n])
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			break
		}
		s.disconnect()
		if result.Len() > 0 {
			logger.Warnf(ctx, "the decoding daemon connection of session '%s' failed: %v", s.sessionToken, err)
			break
		}
		return "", fmt.Errorf("unable to read the transcript: %w", err)
	}
	return strings.TrimRight(result.String(), "\n "), nil
}

func (s *State) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
