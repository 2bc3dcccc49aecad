// Package server implements the decoding service: gRPC requests are
// handed over to a fixed set of acceptor calls, and worker goroutines
// drive every call through CREATE -> PROCESS -> FINISH using a completion
// queue.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xaionaro-go/speechstream/pkg/completion"
	"github.com/xaionaro-go/speechstream/pkg/metrics"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
	"github.com/xaionaro-go/speechstream/pkg/session"
)

type Server struct {
	Registry *session.Registry
	Workers  uint

	// OnCallStateChange, if set, is called on every call state transition.
	OnCallStateChange func(tag completion.Tag, from, to completion.CallState)

	metrics    *metrics.Server
	grpcServer *grpc.Server
	calls      *completion.Table[*call]
	queue      *completion.Queue
	acceptors  chan completion.Tag
	closeCh    chan struct{}
}

func New(
	registry *session.Registry,
	workers uint,
	m *metrics.Server,
	grpcOpts ...grpc.ServerOption,
) *Server {
	if workers == 0 {
		workers = 1
	}
	s := &Server{
		Registry:   registry,
		Workers:    workers,
		metrics:    m,
		grpcServer: grpc.NewServer(grpcOpts...),
		calls:      completion.NewTable[*call](),
		queue:      completion.NewQueue(),
		acceptors:  make(chan completion.Tag, workers),
		closeCh:    make(chan struct{}),
	}
	rpc.RegisterDecoderServer(s.grpcServer, (*grpcHandler)(s))
	return s
}

// Serve serves requests from the listener until ctx is done, then stops
// gracefully: running calls are completed and all the calls are released.
func (s *Server) Serve(
	ctx context.Context,
	listener net.Listener,
) (_err error) {
	logger.Debugf(ctx, "Serve: %s", listener.Addr())
	defer func() { logger.Debugf(ctx, "/Serve: %s: %v", listener.Addr(), _err) }()

	workerCtx := context.WithoutCancel(ctx)
	for i := uint(0); i < s.Workers; i++ {
		s.arm(workerCtx)
	}

	var workers errgroup.Group
	for i := uint(0); i < s.Workers; i++ {
		workers.Go(func() error {
			s.workerLoop(workerCtx)
			return nil
		})
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- s.grpcServer.Serve(listener)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Infof(ctx, "stopping the server: %v", ctx.Err())
	case serveErr = <-serveErrCh:
		logger.Errorf(ctx, "the gRPC server stopped: %v", serveErr)
	}

	s.grpcServer.GracefulStop()
	close(s.closeCh)
	s.cancelAcceptors(ctx)
	s.queue.Shutdown()
	_ = workers.Wait()

	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return fmt.Errorf("unable to serve: %w", serveErr)
	}
	return nil
}

// OutstandingCalls returns the amount of not-yet-released calls, including
// idle acceptors.
func (s *Server) OutstandingCalls() int {
	return s.calls.Len()
}

// arm creates a new acceptor call.
func (s *Server) arm(ctx context.Context) {
	c := &call{server: s}
	c.tag = s.calls.Register(c)
	if err := s.queue.Expect(); err != nil {
		logger.Debugf(ctx, "not arming a new acceptor: %v", err)
		s.calls.Release(c.tag)
		return
	}
	logger.Tracef(ctx, "armed acceptor %s", c.tag)
	s.acceptors <- c.tag
}

func (s *Server) cancelAcceptors(ctx context.Context) {
	for {
		select {
		case tag := <-s.acceptors:
			logger.Tracef(ctx, "cancelling acceptor %s", tag)
			s.queue.Post(tag, false)
		default:
			return
		}
	}
}

func (s *Server) workerLoop(ctx context.Context) {
	logger.Debugf(ctx, "workerLoop")
	defer logger.Debugf(ctx, "/workerLoop")
	for {
		ev, ok := s.queue.Next(ctx)
		if !ok {
			return
		}
		c, found := s.calls.Lookup(ev.Tag)
		if !found {
			logger.Errorf(ctx, "received an event for a released call %s", ev.Tag)
			continue
		}
		c.proceed(ctx, ev.OK)
	}
}

func (s *Server) advance(ctx context.Context, c *call, to completion.CallState) {
	from := c.state
	if err := c.state.Advance(to); err != nil {
		logger.Errorf(ctx, "call %s: %v", c.tag, err)
		return
	}
	if s.OnCallStateChange != nil {
		s.OnCallStateChange(c.tag, from, to)
	}
}

func (s *Server) finish(ctx context.Context, c *call) {
	s.advance(ctx, c, completion.CallStateFinished)
	if !s.calls.Release(c.tag) {
		logger.Errorf(ctx, "call %s was already released", c.tag)
	}
}

func (s *Server) logInvalidState(ctx context.Context, c *call) {
	logger.Errorf(ctx, "call %s received an event in state %s", c.tag, c.state)
}

func (s *Server) process(ctx context.Context, c *call) {
	s.metrics.ObserveRequest()
	if err := s.queue.Expect(); err != nil {
		logger.Errorf(ctx, "call %s: unable to expect the reply delivery: %v", c.tag, err)
	}

	decodeCtx, cancelFn := context.WithCancel(ctx)
	stop := context.AfterFunc(c.inbound.ctx, cancelFn)
	transcript, err := s.decode(decodeCtx, c.inbound.request)
	stop()
	cancelFn()

	c.inbound.replyCh <- reply{transcript: transcript, err: err}
}

func (s *Server) decode(
	ctx context.Context,
	req *rpc.AudioData,
) (_ret *rpc.Transcript, _err error) {
	logger.Debugf(ctx, "decode: %s", req)
	defer func() { logger.Debugf(ctx, "/decode: %s: %v %v", req, _ret, _err) }()

	if req.SessionToken == "" {
		s.metrics.ObserveFailure("invalid_argument")
		return nil, status.Error(codes.InvalidArgument, "empty session token")
	}
	if len(req.Audio) == 0 {
		s.metrics.ObserveFailure("invalid_argument")
		return nil, status.Error(codes.InvalidArgument, "empty audio")
	}

	sess, err := s.Registry.Resolve(ctx, req.SessionToken)
	if err != nil {
		s.metrics.ObserveFailure("session")
		if errors.Is(err, session.ErrClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "unable to resolve the session: %v", err)
	}
	s.metrics.SetSessions(s.Registry.Len())

	startedAt := time.Now()
	text, err := sess.Decode(ctx, req.Audio)
	s.metrics.ObserveDecode(time.Since(startedAt))
	if err != nil {
		s.metrics.ObserveFailure("decode")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Errorf(codes.Internal, "unable to decode: %v", err)
	}

	return &rpc.Transcript{
		SessionToken: req.SessionToken,
		AudioID:      req.AudioID,
		Text:         text,
	}, nil
}

type grpcHandler Server

var _ rpc.DecoderServer = (*grpcHandler)(nil)

// DecodeAudio attaches the request to an idle acceptor, signals its
// arrival, and waits for the reply.
func (h *grpcHandler) DecodeAudio(
	ctx context.Context,
	req *rpc.AudioData,
) (*rpc.Transcript, error) {
	s := (*Server)(h)

	var tag completion.Tag
	select {
	case tag = <-s.acceptors:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	case <-s.closeCh:
		return nil, status.Error(codes.Unavailable, "the server is shutting down")
	}

	c, ok := s.calls.Lookup(tag)
	if !ok {
		return nil, status.Errorf(codes.Internal, "acceptor %s is already released", tag)
	}
	inbound := &inboundCall{
		ctx:     ctx,
		request: req,
		replyCh: make(chan reply, 1),
	}
	c.inbound = inbound
	s.queue.Post(tag, true)

	r := <-inbound.replyCh
	s.queue.Post(tag, true)
	return r.transcript, r.err
}
