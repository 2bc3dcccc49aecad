package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName           = "speechstream.Decoder"
	MethodDecodeAudio     = "DecodeAudio"
	FullMethodDecodeAudio = "/" + ServiceName + "/" + MethodDecodeAudio
)

type DecoderServer interface {
	DecodeAudio(context.Context, *AudioData) (*Transcript, error)
}

type DecoderClient interface {
	DecodeAudio(ctx context.Context, in *AudioData, opts ...grpc.CallOption) (*Transcript, error)

	// StartDecodeAudio starts the call and sends the request before
	// returning, so calls started one after another reach the transport in
	// that order. The reply is awaited separately with Recv.
	StartDecodeAudio(ctx context.Context, in *AudioData, opts ...grpc.CallOption) (PendingTranscript, error)
}

// PendingTranscript is a started DecodeAudio call.
type PendingTranscript interface {
	// Recv waits for the reply; it may be called only once.
	Recv() (*Transcript, error)
}

type decoderClient struct {
	cc grpc.ClientConnInterface
}

func NewDecoderClient(cc grpc.ClientConnInterface) DecoderClient {
	return &decoderClient{cc: cc}
}

func (c *decoderClient) DecodeAudio(
	ctx context.Context,
	in *AudioData,
	opts ...grpc.CallOption,
) (*Transcript, error) {
	out := new(Transcript)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethodDecodeAudio, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var decodeAudioStreamDesc = grpc.StreamDesc{
	StreamName: MethodDecodeAudio,
}

func (c *decoderClient) StartDecodeAudio(
	ctx context.Context,
	in *AudioData,
	opts ...grpc.CallOption,
) (PendingTranscript, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &decodeAudioStreamDesc, FullMethodDecodeAudio, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &pendingTranscript{stream: stream}, nil
}

type pendingTranscript struct {
	stream grpc.ClientStream
}

func (p *pendingTranscript) Recv() (*Transcript, error) {
	out := new(Transcript)
	if err := p.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterDecoderServer(s grpc.ServiceRegistrar, srv DecoderServer) {
	s.RegisterService(&decoderServiceDesc, srv)
}

func decodeAudioHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(AudioData)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecoderServer).DecodeAudio(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethodDecodeAudio,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecoderServer).DecodeAudio(ctx, req.(*AudioData))
	}
	return interceptor(ctx, in, info, handler)
}

var decoderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecoderServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: MethodDecodeAudio,
			Handler:    decodeAudioHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "speechstream/decoder",
}
