package pulseaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

// CaptureDevice adapts the callback-driven Pulse record stream to
// the blocking per-period read contract: the callback fills a ring buffer
// and ReadPeriod drains it. A callback that finds the ring buffer full
// drops its data and marks an overrun.
type CaptureDevice struct {
	Client       *pulse.Client
	RecordStream RecordStream

	format     types.Format
	writer     *pulseWriter
	locker     sync.Mutex
	ring       *circular.Buffer
	progressCh chan struct{}
	isOverrun  bool
	isStopped  bool
}

var _ types.CaptureDevice = (*CaptureDevice)(nil)

// RecordStream is the part of *pulse.RecordStream the device drives.
//
// Start and Stop wait for the reply of the server, which is delivered by
// the same goroutine that delivers the captured data, so they must never be
// called with the device locked.
type RecordStream interface {
	Start()
	Stop()
	Close()
	Error() error
}

var _ RecordStream = (*pulse.RecordStream)(nil)

func newCaptureDevice(
	client *pulse.Client,
	format types.Format,
	sampleFormat byte,
	ringSize int,
) *CaptureDevice {
	d := &CaptureDevice{
		Client:     client,
		format:     format,
		ring:       circular.NewBuffer(ringSize),
		progressCh: make(chan struct{}),
	}
	d.writer = &pulseWriter{
		pulseFormat: sampleFormat,
		device:      d,
	}
	return d
}

func (d *CaptureDevice) Format() types.Format {
	return d.format
}

func (d *CaptureDevice) onCaptured(p []byte) {
	d.locker.Lock()
	defer d.locker.Unlock()
	_, err := d.ring.Write(p)
	if err != nil {
		if errors.Is(err, circular.ErrNoSpace) {
			d.isOverrun = true
		}
	}
	oldCh := d.progressCh
	d.progressCh = make(chan struct{})
	close(oldCh)
}

func (d *CaptureDevice) ReadPeriod(
	ctx context.Context,
	buf []byte,
) (_ret int, _err error) {
	logger.Tracef(ctx, "ReadPeriod, len:%d", len(buf))
	defer func() { logger.Tracef(ctx, "/ReadPeriod, len:%d: %d, %v", len(buf), _ret, _err) }()

	received := 0
	for received < len(buf) {
		waitCh, err := func() (chan struct{}, error) {
			d.locker.Lock()
			defer d.locker.Unlock()
			if d.isOverrun {
				return nil, types.ErrXRun
			}
			if err := d.RecordStream.Error(); err != nil {
				return nil, fmt.Errorf("the record stream failed: %w", err)
			}
			n, err := d.ring.Read(buf[received:])
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("unable to read from the circular buffer: %w", err)
			}
			received += n
			return d.progressCh, nil
		}()
		if err != nil {
			return 0, err
		}
		if received >= len(buf) {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-waitCh:
		}
	}
	return received, nil
}

// Prepare discards the stale buffered audio and clears the overrun mark.
func (d *CaptureDevice) Prepare() error {
	if d.resetBuffer() {
		d.RecordStream.Start()
	}
	return nil
}

func (d *CaptureDevice) resetBuffer() (needsStart bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	discard := make([]byte, d.format.BytesPerPeriod())
	for {
		n, err := d.ring.Read(discard)
		if err != nil || n == 0 {
			break
		}
	}
	d.isOverrun = false
	needsStart = d.isStopped
	d.isStopped = false
	return
}

func (d *CaptureDevice) Stop() error {
	if !d.markStopped() {
		return nil
	}
	d.RecordStream.Stop()
	return nil
}

func (d *CaptureDevice) markStopped() (changed bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.isStopped {
		return false
	}
	d.isStopped = true
	return true
}

func (d *CaptureDevice) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	d.Stop()
	d.RecordStream.Close()
	if d.Client != nil {
		d.Client.Close()
	}
	return
}

type pulseWriter struct {
	pulseFormat byte
	device      *CaptureDevice
}

var _ pulse.Writer = (*pulseWriter)(nil)

func (w *pulseWriter) Write(p []byte) (int, error) {
	w.device.onCaptured(p)
	return len(p), nil
}

func (w *pulseWriter) Format() byte {
	return w.pulseFormat
}
