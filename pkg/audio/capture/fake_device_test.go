package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type readResult struct {
	N   int
	Err error
}

// scriptedDevice replays a fixed list of read results and then fails with io.EOF.
type scriptedDevice struct {
	format  types.Format
	locker  sync.Mutex
	script  []readResult
	fill    byte
	prepare int
	stop    int
	closed  bool
}

var _ types.CaptureDevice = (*scriptedDevice)(nil)

func (d *scriptedDevice) Format() types.Format {
	return d.format
}

func (d *scriptedDevice) ReadPeriod(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	if len(d.script) == 0 {
		return 0, io.EOF
	}
	r := d.script[0]
	d.script = d.script[1:]
	if r.Err != nil {
		return 0, r.Err
	}
	d.fill++
	for i := 0; i < r.N; i++ {
		buf[i] = d.fill
	}
	return r.N, nil
}

func (d *scriptedDevice) Prepare() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.prepare++
	return nil
}

func (d *scriptedDevice) Stop() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.stop++
	return nil
}

func (d *scriptedDevice) Close() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.closed = true
	return nil
}

func (d *scriptedDevice) counters() (prepare, stop int, closed bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.prepare, d.stop, d.closed
}

// infiniteDevice returns full periods until the context is cancelled.
type infiniteDevice struct {
	format types.Format
	stops  int
	locker sync.Mutex
}

func (d *infiniteDevice) Format() types.Format { return d.format }
func (d *infiniteDevice) ReadPeriod(ctx context.Context, buf []byte) (int, error) {
	t := time.NewTimer(200 * time.Microsecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
	}
	return len(buf), nil
}
func (d *infiniteDevice) Prepare() error { return nil }
func (d *infiniteDevice) Stop() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.stops++
	return nil
}
func (d *infiniteDevice) Close() error { return nil }

var errDeviceGone = errors.New("device disappeared")
