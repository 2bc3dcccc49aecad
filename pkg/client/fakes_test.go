package client

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/xaionaro-go/speechstream/pkg/rpc"
)

// gatedTranscriber records calls in the order they are started and holds
// every reply until its audio ID is released.
type gatedTranscriber struct {
	locker  sync.Mutex
	gates   map[uint32]chan struct{}
	arrived chan *rpc.AudioData
	fail    map[uint32]error
	refuse  map[uint32]error
}

func newGatedTranscriber(capacity int) *gatedTranscriber {
	return &gatedTranscriber{
		gates:   map[uint32]chan struct{}{},
		arrived: make(chan *rpc.AudioData, capacity),
		fail:    map[uint32]error{},
		refuse:  map[uint32]error{},
	}
}

func (t *gatedTranscriber) gate(id uint32) chan struct{} {
	t.locker.Lock()
	defer t.locker.Unlock()
	ch, ok := t.gates[id]
	if !ok {
		ch = make(chan struct{})
		t.gates[id] = ch
	}
	return ch
}

func (t *gatedTranscriber) release(id uint32) {
	close(t.gate(id))
}

func (t *gatedTranscriber) DecodeAudio(
	ctx context.Context,
	in *rpc.AudioData,
	opts ...grpc.CallOption,
) (*rpc.Transcript, error) {
	pending, err := t.StartDecodeAudio(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return pending.Recv()
}

func (t *gatedTranscriber) StartDecodeAudio(
	ctx context.Context,
	in *rpc.AudioData,
	opts ...grpc.CallOption,
) (rpc.PendingTranscript, error) {
	t.locker.Lock()
	err := t.refuse[in.AudioID]
	t.locker.Unlock()
	if err != nil {
		return nil, err
	}
	t.arrived <- in
	return &gatedCall{
		transcriber: t,
		ctx:         ctx,
		request:     in,
		gate:        t.gate(in.AudioID),
	}, nil
}

type gatedCall struct {
	transcriber *gatedTranscriber
	ctx         context.Context
	request     *rpc.AudioData
	gate        chan struct{}
}

func (c *gatedCall) Recv() (*rpc.Transcript, error) {
	select {
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case <-c.gate:
	}
	t := c.transcriber
	t.locker.Lock()
	err := t.fail[c.request.AudioID]
	t.locker.Unlock()
	if err != nil {
		return nil, err
	}
	return &rpc.Transcript{
		SessionToken: c.request.SessionToken,
		AudioID:      c.request.AudioID,
		Text:         fmt.Sprintf("%d", c.request.AudioID),
	}, nil
}

// instantTranscriber answers immediately with the size of the audio.
type instantTranscriber struct {
	locker   sync.Mutex
	requests []*rpc.AudioData
}

func (t *instantTranscriber) DecodeAudio(
	ctx context.Context,
	in *rpc.AudioData,
	opts ...grpc.CallOption,
) (*rpc.Transcript, error) {
	t.locker.Lock()
	t.requests = append(t.requests, in)
	t.locker.Unlock()
	return &rpc.Transcript{
		SessionToken: in.SessionToken,
		AudioID:      in.AudioID,
		Text:         fmt.Sprintf("%d bytes", len(in.Audio)),
	}, nil
}

func (t *instantTranscriber) StartDecodeAudio(
	ctx context.Context,
	in *rpc.AudioData,
	opts ...grpc.CallOption,
) (rpc.PendingTranscript, error) {
	resp, err := t.DecodeAudio(ctx, in, opts...)
	return readyTranscript{transcript: resp, err: err}, nil
}

func (t *instantTranscriber) Requests() []*rpc.AudioData {
	t.locker.Lock()
	defer t.locker.Unlock()
	return append([]*rpc.AudioData(nil), t.requests...)
}

type readyTranscript struct {
	transcript *rpc.Transcript
	err        error
}

func (r readyTranscript) Recv() (*rpc.Transcript, error) {
	return r.transcript, r.err
}

// chunkSource hands out the prepared chunks one per ConsumeAll.
type chunkSource struct {
	locker        sync.Mutex
	chunks        [][]byte
	chunkDuration time.Duration

	// infinite sources accumulate audio in real time
	infinite     bool
	lastConsumed time.Time
}

func (s *chunkSource) AvailableDuration() time.Duration {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.infinite {
		if s.lastConsumed.IsZero() {
			s.lastConsumed = time.Now()
		}
		return time.Since(s.lastConsumed)
	}
	if len(s.chunks) > 0 {
		return s.chunkDuration
	}
	return 0
}

func (s *chunkSource) ConsumeAll() []byte {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.infinite {
		s.lastConsumed = time.Now()
		return []byte{1, 2, 3, 4}
	}
	if len(s.chunks) == 0 {
		return nil
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk
}

func (s *chunkSource) Remaining() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return len(s.chunks)
}

// fakeCapture is ended either by the test or by Stop.
type fakeCapture struct {
	doneCh   chan struct{}
	doneOnce sync.Once
	stops    int
	locker   sync.Mutex
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{doneCh: make(chan struct{})}
}

func (c *fakeCapture) End() {
	c.doneOnce.Do(func() { close(c.doneCh) })
}

func (c *fakeCapture) Done() <-chan struct{} {
	return c.doneCh
}

func (c *fakeCapture) Stop() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.stops++
	c.End()
	return nil
}

func (c *fakeCapture) Stops() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.stops
}

type lockedBuffer struct {
	locker sync.Mutex
	buf    bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.locker.Lock()
	defer b.locker.Unlock()
	s := strings.TrimRight(b.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
