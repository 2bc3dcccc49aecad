// Package stub is an in-process Engine that does not recognize speech: it
// reports how much audio each session received. It is used for dry runs
// of the pipeline and in tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/speechstream/pkg/decoder"
)

var ErrConcurrentDecode = errors.New("concurrent Decode calls on the same session state")

type Config struct {
	SampleRate  uint32        `yaml:"sample_rate"`
	Channels    uint32        `yaml:"channels"`
	ProduceTime bool          `yaml:"produce_time"`
	Text        string        `yaml:"text"`
	DecodeDelay time.Duration `yaml:"decode_delay"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		Channels:    1,
		ProduceTime: true,
	}
}

type Engine struct {
	Config      Config
	statesCount atomic.Int64
}

var _ decoder.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate is not set")
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Engine{Config: cfg}, nil
}

func (e *Engine) NewState(ctx context.Context, sessionToken string) (decoder.State, error) {
	e.statesCount.Add(1)
	logger.Debugf(ctx, "new stub decoder state for session '%s'", sessionToken)
	return &State{engine: e, sessionToken: sessionToken}, nil
}

// StatesCount returns how many states were ever created.
func (e *Engine) StatesCount() int64 {
	return e.statesCount.Load()
}

func (e *Engine) Close() error {
	return nil
}

type State struct {
	engine       *Engine
	sessionToken string
	inFlight     atomic.Int32
	offset       time.Duration
	chunks       uint64
	isClosed     bool
}

var _ decoder.State = (*State)(nil)

func (s *State) Decode(ctx context.Context, audio []byte) (string, error) {
	if s.inFlight.Add(1) != 1 {
		s.inFlight.Add(-1)
		return "", ErrConcurrentDecode
	}
	defer s.inFlight.Add(-1)
	if s.isClosed {
		return "", fmt.Errorf("the state of session '%s' is closed", s.sessionToken)
	}

	cfg := s.engine.Config
	if cfg.DecodeDelay > 0 {
		t := time.NewTimer(cfg.DecodeDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	samples := decoder.BytesToSamples(audio)
	frames := uint64(len(samples)) / uint64(cfg.Channels)
	duration := time.Duration(frames) * time.Second / time.Duration(cfg.SampleRate)
	begin, end := s.offset, s.offset+duration
	s.offset = end
	s.chunks++

	text := cfg.Text
	if text == "" {
		text = fmt.Sprintf("chunk %d", s.chunks)
	}
	var parts []string
	if cfg.ProduceTime {
		parts = append(parts, decoder.TimeSpanString(begin, end))
	}
	parts = append(parts, text)
	return strings.Join(parts, " "), nil
}

func (s *State) Close() error {
	s.isClosed = true
	return nil
}
