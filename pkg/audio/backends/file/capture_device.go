// Package file provides a capture device that replays raw PCM from a file
// or any other reader, optionally paced at the capture rate.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type CaptureDevice struct {
	Reader   *datacounter.ReaderCounter
	Realtime bool

	closer       io.Closer
	format       types.Format
	locker       sync.Mutex
	nextPeriodAt time.Time
	isStopped    bool
}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

// Open opens a raw PCM file; raw PCM has no header, so the format is
// taken as given.
func Open(
	ctx context.Context,
	path string,
	format types.Format,
	realtime bool,
) (*CaptureDevice, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format %s: %w", format, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	logger.Debugf(ctx, "opened '%s' as a capture device: %s (realtime: %v)", path, format, realtime)
	d := NewCaptureDevice(f, format, realtime)
	d.closer = f
	return d, nil
}

func NewCaptureDevice(
	r io.Reader,
	format types.Format,
	realtime bool,
) *CaptureDevice {
	return &CaptureDevice{
		Reader:   datacounter.NewReaderCounter(r),
		Realtime: realtime,
		format:   format,
	}
}

func (d *CaptureDevice) Format() types.Format {
	return d.format
}

// ReadPeriod returns io.EOF when the input is exhausted; a trailing
// incomplete period is returned as a short read.
func (d *CaptureDevice) ReadPeriod(
	ctx context.Context,
	buf []byte,
) (int, error) {
	if err := d.waitForPeriod(ctx); err != nil {
		return 0, err
	}

	n, err := io.ReadFull(d.Reader, buf)
	logger.Tracef(ctx, "ReadFull: %d %v (total: %d)", n, err, d.Reader.Count())
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	default:
		return n, err
	}
}

func (d *CaptureDevice) waitForPeriod(ctx context.Context) error {
	if !d.Realtime {
		return ctx.Err()
	}

	d.locker.Lock()
	now := time.Now()
	if d.nextPeriodAt.IsZero() || d.nextPeriodAt.Before(now) {
		d.nextPeriodAt = now
	}
	wakeAt := d.nextPeriodAt
	d.nextPeriodAt = d.nextPeriodAt.Add(d.format.PeriodDuration())
	d.locker.Unlock()

	t := time.NewTimer(time.Until(wakeAt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *CaptureDevice) Prepare() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.nextPeriodAt = time.Time{}
	d.isStopped = false
	return nil
}

func (d *CaptureDevice) Stop() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.isStopped = true
	return nil
}

func (d *CaptureDevice) BytesRead() uint64 {
	return d.Reader.Count()
}

func (d *CaptureDevice) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
