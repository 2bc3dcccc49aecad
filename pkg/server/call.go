package server

import (
	"context"

	"github.com/xaionaro-go/speechstream/pkg/completion"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
)

type reply struct {
	transcript *rpc.Transcript
	err        error
}

// inboundCall is a received request waiting for its reply.
type inboundCall struct {
	ctx     context.Context
	request *rpc.AudioData
	replyCh chan reply
}

// call is one acceptor slot: while Created it waits for a request; once a
// request is attached it is Processing; it is released when Finished.
type call struct {
	server  *Server
	tag     completion.Tag
	state   completion.CallState
	inbound *inboundCall
}

func (c *call) proceed(ctx context.Context, ok bool) {
	s := c.server
	switch c.state {
	case completion.CallStateCreated:
		if !ok {
			s.finish(ctx, c)
			return
		}
		s.advance(ctx, c, completion.CallStateProcessing)
		s.arm(ctx)
		s.process(ctx, c)
	case completion.CallStateProcessing:
		s.metrics.ObserveFinished()
		s.finish(ctx, c)
	default:
		s.logInvalidState(ctx, c)
	}
}
