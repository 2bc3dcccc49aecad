package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type CaptureDeviceOpener struct{}

var _ types.CaptureDeviceOpener = (*CaptureDeviceOpener)(nil)

func NewCaptureDeviceOpener() (*CaptureDeviceOpener, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &CaptureDeviceOpener{}, nil
}

// Close releases the PortAudio library; devices opened through the opener
// need it, so it is called only if no device was opened.
func (*CaptureDeviceOpener) Close() error {
	return portaudio.Terminate()
}

func (*CaptureDeviceOpener) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)

	if devices, err := portaudio.Devices(); err == nil {
		for idx, device := range devices {
			logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		}
	}
	return nil
}

func (*CaptureDeviceOpener) OpenCaptureDevice(
	ctx context.Context,
	format types.Format,
) (types.CaptureDevice, error) {
	var (
		d   *CaptureDevice
		err error
	)
	switch format.PCMFormat {
	case types.PCMFormatU8:
		d, err = newCaptureDevice[uint8](ctx, format)
	case types.PCMFormatS16LE:
		d, err = newCaptureDevice[int16](ctx, format)
	case types.PCMFormatS32LE:
		d, err = newCaptureDevice[int32](ctx, format)
	case types.PCMFormatFloat32LE:
		d, err = newCaptureDevice[float32](ctx, format)
	default:
		return nil, fmt.Errorf("do not know how to open a capture stream for PCM format %s", format.PCMFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open the stream: %w", err)
	}

	logger.Tracef(ctx, "PortAudioStream.Start")
	err = d.PortAudioStream.Start()
	logger.Tracef(ctx, "/PortAudioStream.Start: %v", err)
	if err != nil {
		d.PortAudioStream.Close()
		return nil, fmt.Errorf("unable to start the stream: %w", err)
	}
	return d, nil
}
