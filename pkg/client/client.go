// Package client streams captured audio to the decoding server and
// renders transcripts in the order the responses arrive.
package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"golang.org/x/sync/errgroup"

	"github.com/xaionaro-go/speechstream/pkg/completion"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
)

const DefaultChunkDuration = time.Second

type Config struct {
	SessionToken string

	// ChunkDuration is how much audio is collected before sending a request.
	ChunkDuration time.Duration

	// Timeout stops recording after the given time; zero means never.
	Timeout time.Duration

	// RPCTimeout limits every single call; zero means no limit.
	RPCTimeout time.Duration
}

// Source is where the audio to send is collected.
type Source interface {
	AvailableDuration() time.Duration
	ConsumeAll() []byte
}

// Capture is what fills the Source.
type Capture interface {
	Stop() error
	Done() <-chan struct{}
}

type Stats struct {
	Sent     uint64
	Rendered uint64
	Empty    uint64
	Failed   uint64
}

type Client struct {
	Config
	Transcriber rpc.DecoderClient
	Output      io.Writer

	calls         *completion.Table[*call]
	queue         *completion.Queue
	work          *WorkQueue[*rpc.AudioData]
	stopRecording atomic.Bool

	sent     atomic.Uint64
	rendered atomic.Uint64
	empty    atomic.Uint64
	failed   atomic.Uint64
}

func New(
	transcriber rpc.DecoderClient,
	cfg Config,
	output io.Writer,
) *Client {
	if cfg.SessionToken == "" {
		cfg.SessionToken = NewSessionToken()
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	return &Client{
		Config:      cfg,
		Transcriber: transcriber,
		Output:      output,
		calls:       completion.NewTable[*call](),
		queue:       completion.NewQueue(),
		work:        NewWorkQueue[*rpc.AudioData](),
	}
}

func (c *Client) Stats() Stats {
	return Stats{
		Sent:     c.sent.Load(),
		Rendered: c.rendered.Load(),
		Empty:    c.empty.Load(),
		Failed:   c.failed.Load(),
	}
}

// StopRecording makes the producer stop; Stream then drains and returns.
func (c *Client) StopRecording() {
	c.stopRecording.Store(true)
}

// Stream sends the audio collected in source until recording is stopped
// (StopRecording, Timeout, ctx cancellation, or the end of the capture),
// and waits for all the responses. A Client streams only once.
//
// Shutdown order: producer, capture, renderer, timeout.
func (c *Client) Stream(
	ctx context.Context,
	source Source,
	capture Capture,
) (_err error) {
	logger.Debugf(ctx, "Stream: session '%s'", c.SessionToken)
	defer func() { logger.Debugf(ctx, "/Stream: session '%s': %v", c.SessionToken, _err) }()

	callCtx := context.WithoutCancel(ctx)

	var renderer errgroup.Group
	renderer.Go(func() error {
		c.renderLoop(callCtx)
		return nil
	})

	timeoutStopCh := make(chan struct{})
	var timeoutWG sync.WaitGroup
	if c.Timeout > 0 {
		timeoutWG.Add(1)
		observability.Go(ctx, func() {
			defer timeoutWG.Done()
			t := time.NewTimer(c.Timeout)
			defer t.Stop()
			select {
			case <-t.C:
				logger.Infof(ctx, "recording timeout %s reached", c.Timeout)
				c.StopRecording()
			case <-timeoutStopCh:
			}
		})
	}

	producerDone := make(chan struct{})
	observability.Go(ctx, func() {
		defer close(producerDone)
		defer c.work.Close()
		c.produce(ctx, source, capture.Done())
	})

	c.dispatchLoop(callCtx)
	<-producerDone

	var captureErr error
	if err := capture.Stop(); err != nil {
		captureErr = fmt.Errorf("unable to stop capturing: %w", err)
	}

	c.queue.Shutdown()
	_ = renderer.Wait()

	close(timeoutStopCh)
	timeoutWG.Wait()
	return captureErr
}

func (c *Client) produce(
	ctx context.Context,
	source Source,
	captureDone <-chan struct{},
) {
	logger.Debugf(ctx, "producer")
	defer logger.Debugf(ctx, "/producer")

	var audioID uint32
	enqueue := func(audio []byte) {
		req, err := NewRequest(c.SessionToken, audioID, audio)
		if err != nil {
			logger.Errorf(ctx, "unable to create a request: %v", err)
			return
		}
		audioID++
		c.work.Push(req)
	}

	for {
		if c.stopRecording.Load() || ctx.Err() != nil {
			return
		}

		select {
		case <-captureDone:
			if audio := source.ConsumeAll(); len(audio) > 0 {
				enqueue(audio)
			}
			logger.Debugf(ctx, "the capture has ended")
			return
		default:
		}

		if source.AvailableDuration() >= c.ChunkDuration {
			enqueue(source.ConsumeAll())
			continue
		}

		t := time.NewTimer(c.ChunkDuration)
		select {
		case <-ctx.Done():
		case <-captureDone:
		case <-t.C:
		}
		t.Stop()
	}
}

func (c *Client) dispatchLoop(ctx context.Context) {
	logger.Debugf(ctx, "dispatcher")
	defer logger.Debugf(ctx, "/dispatcher")
	for {
		req, ok := c.work.Pop(ctx)
		if !ok {
			return
		}
		c.startCall(ctx, req)
	}
}

func (c *Client) startCall(ctx context.Context, req *rpc.AudioData) {
	if len(req.Audio) == 0 {
		logger.Errorf(ctx, "not sending request %d: %v", req.AudioID, ErrEmptyAudio)
		return
	}

	cl := &call{request: req}
	tag := c.calls.Register(cl)
	if err := c.queue.Expect(); err != nil {
		logger.Errorf(ctx, "not sending request %d: %v", req.AudioID, err)
		c.calls.Release(tag)
		return
	}
	if err := cl.state.Advance(completion.CallStateProcessing); err != nil {
		logger.Errorf(ctx, "call %s: %v", tag, err)
	}

	callCtx, cancelFn := ctx, context.CancelFunc(func() {})
	if c.RPCTimeout > 0 {
		callCtx, cancelFn = context.WithTimeout(ctx, c.RPCTimeout)
	}
	c.sent.Add(1)
	logger.Tracef(ctx, "sending request %s as call %s", req, tag)
	pending, err := c.Transcriber.StartDecodeAudio(callCtx, req)
	if err != nil {
		cancelFn()
		cl.err = err
		c.queue.Post(tag, false)
		return
	}
	observability.Go(ctx, func() {
		defer cancelFn()
		cl.response, cl.err = pending.Recv()
		c.queue.Post(tag, cl.err == nil)
	})
}

func (c *Client) renderLoop(ctx context.Context) {
	logger.Debugf(ctx, "renderer")
	defer logger.Debugf(ctx, "/renderer")
	for {
		ev, ok := c.queue.Next(ctx)
		if !ok {
			return
		}
		cl, found := c.calls.Lookup(ev.Tag)
		if !found {
			logger.Errorf(ctx, "received an event for a released call %s", ev.Tag)
			continue
		}
		c.render(ctx, cl, ev.OK)
		if err := cl.state.Advance(completion.CallStateFinished); err != nil {
			logger.Errorf(ctx, "call %s: %v", ev.Tag, err)
		}
		c.calls.Release(ev.Tag)
	}
}

func (c *Client) render(ctx context.Context, cl *call, ok bool) {
	if !ok {
		c.failed.Add(1)
		logger.Errorf(ctx, "request %d failed: %v", cl.request.AudioID, cl.err)
		return
	}
	if cl.response.Text == "" {
		c.empty.Add(1)
		logger.Infof(ctx, "request %d: empty transcript", cl.request.AudioID)
		return
	}
	c.rendered.Add(1)
	if _, err := fmt.Fprintln(c.Output, cl.response.Text); err != nil {
		logger.Errorf(ctx, "unable to write the transcript of request %d: %v", cl.request.AudioID, err)
	}
}

// DecodeSync sends all the audio as one request of a fresh session and
// waits for the transcript.
func (c *Client) DecodeSync(
	ctx context.Context,
	audio []byte,
) (_ string, _err error) {
	logger.Debugf(ctx, "DecodeSync: %d bytes", len(audio))
	defer func() { logger.Debugf(ctx, "/DecodeSync: %v", _err) }()

	req, err := NewRequest(NewSessionToken(), 0, audio)
	if err != nil {
		return "", err
	}
	if c.RPCTimeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, c.RPCTimeout)
		defer cancelFn()
	}
	resp, err := c.Transcriber.DecodeAudio(ctx, req)
	if err != nil {
		return "", fmt.Errorf("unable to decode: %w", err)
	}
	return resp.Text, nil
}

type call struct {
	state    completion.CallState
	request  *rpc.AudioData
	response *rpc.Transcript
	err      error
}
