package pulseaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

const (
	// RingBufferDuration is how much captured audio is kept until ReadPeriod
	// picks it up; if the reader falls behind further, it is an overrun.
	RingBufferDuration = time.Second
)

type CaptureDeviceOpener struct {
	PulseClient *pulse.Client
}

var _ types.CaptureDeviceOpener = (*CaptureDeviceOpener)(nil)

func NewCaptureDeviceOpener() (*CaptureDeviceOpener, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &CaptureDeviceOpener{
		PulseClient: c,
	}, nil
}

// Close closes the Pulse client; it must not be called once a device
// was opened, because the device owns the client then.
func (o *CaptureDeviceOpener) Close() error {
	o.PulseClient.Close()
	return nil
}

func (o *CaptureDeviceOpener) Ping(context.Context) error {
	_, err := o.PulseClient.DefaultSource()
	return err
}

func pulseFormat(pcmFormat types.PCMFormat) (byte, error) {
	switch pcmFormat {
	case types.PCMFormatU8:
		return proto.FormatUint8, nil
	case types.PCMFormatS16LE:
		return proto.FormatInt16LE, nil
	case types.PCMFormatS32LE:
		return proto.FormatInt32LE, nil
	case types.PCMFormatFloat32LE:
		return proto.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("received an unexpected format: %v", pcmFormat)
	}
}

// OpenCaptureDevice takes ownership of the Pulse client: it is closed
// together with the returned device.
func (o *CaptureDeviceOpener) OpenCaptureDevice(
	ctx context.Context,
	format types.Format,
) (_ types.CaptureDevice, _err error) {
	logger.Debugf(ctx, "OpenCaptureDevice: %s", format)
	defer func() { logger.Debugf(ctx, "/OpenCaptureDevice: %s: %v", format, _err) }()

	sampleFormat, err := pulseFormat(format.PCMFormat)
	if err != nil {
		return nil, err
	}

	chanMap := proto.ChannelMap{proto.ChannelMono}
	switch format.Channels {
	case 1:
	case 2:
		chanMap = proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", format.Channels)
	}

	ringSize := format.DurationToBytes(RingBufferDuration)
	if ringSize < format.BytesPerPeriod() {
		ringSize = format.BytesPerPeriod()
	}
	d := newCaptureDevice(o.PulseClient, format, sampleFormat, int(ringSize))

	stream, err := o.PulseClient.NewRecord(
		d.writer,
		pulse.RecordSampleRate(int(format.SampleRate)),
		pulse.RecordChannels(chanMap),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a record stream: %w", err)
	}
	d.RecordStream = stream

	stream.Start()
	if err := stream.Error(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("an error occurred during recording: %w", err)
	}
	return d, nil
}
