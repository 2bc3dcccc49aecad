package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type CaptureDevice struct {
	PortAudioStream *portaudio.Stream
	InputBuffer     []byte

	format    types.Format
	locker    sync.Mutex
	isStopped bool
}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

func newCaptureDevice[T any](
	ctx context.Context,
	format types.Format,
) (*CaptureDevice, error) {
	var sample T
	buf := make([]T, int(format.PeriodFrames)*int(format.Channels))
	logger.Debugf(ctx, "newCaptureDevice: %T, %s", sample, format)
	stream, err := portaudio.OpenDefaultStream(int(format.Channels), 0, float64(format.SampleRate), int(format.PeriodFrames), buf)
	if err != nil {
		return nil, err
	}

	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))
	logger.Debugf(ctx, "input bytes buffer size: %d", len(bytesBuf))

	return &CaptureDevice{
		PortAudioStream: stream,
		InputBuffer:     bytesBuf,
		format:          format,
	}, nil
}

func (d *CaptureDevice) Format() types.Format {
	return d.format
}

func (d *CaptureDevice) ReadPeriod(
	ctx context.Context,
	buf []byte,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logger.Tracef(ctx, "Read")
	err := d.PortAudioStream.Read()
	logger.Tracef(ctx, "/Read: %v", err)
	if err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return 0, types.ErrXRun
		}
		return 0, fmt.Errorf("unable to read: %w", err)
	}
	return copy(buf, d.InputBuffer), nil
}

func (d *CaptureDevice) Prepare() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if !d.isStopped {
		return nil
	}
	if err := d.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to restart the stream: %w", err)
	}
	d.isStopped = false
	return nil
}

func (d *CaptureDevice) Stop() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.isStopped {
		return nil
	}
	d.isStopped = true
	return d.PortAudioStream.Abort()
}

func (d *CaptureDevice) Close() error {
	if err := d.Stop(); err != nil {
		logger.Default().Debugf("unable to abort the stream: %v", err)
	}
	return d.PortAudioStream.Close()
}
