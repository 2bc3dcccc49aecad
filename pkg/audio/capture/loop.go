// Package capture runs the loop that moves audio periods from a capture
// device into a chunk buffer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type State int

const (
	StateStopped = State(iota)
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("<unknown_%d>", int(s))
	}
}

// Appender receives whole captured periods. It must not retain p.
type Appender interface {
	Append(p []byte)
}

type Stats struct {
	Periods    uint64
	XRuns      uint64
	ShortReads uint64
}

// Loop reads one period at a time from Device and appends it to Buffer.
//
// Overruns are recovered with Device.Prepare; short reads are skipped;
// io.EOF ends the loop cleanly; any other read error ends it (see Err)
// without closing the device.
type Loop struct {
	Device types.CaptureDevice
	Buffer Appender

	// controlLocker serializes Start and Stop.
	controlLocker sync.Mutex
	wasStarted    bool
	isDeviceUp    bool
	waitGroup     sync.WaitGroup

	locker     sync.Mutex
	state      State
	cancelFunc context.CancelFunc
	doneCh     chan struct{}
	err        error

	periods    atomic.Uint64
	xRuns      atomic.Uint64
	shortReads atomic.Uint64
}

func NewLoop(
	device types.CaptureDevice,
	buffer Appender,
) *Loop {
	doneCh := make(chan struct{})
	close(doneCh)
	return &Loop{
		Device: device,
		Buffer: buffer,
		doneCh: doneCh,
	}
}

// State is StateRunning only while the loop goroutine is alive: a loop that
// ended by itself (EOF or a device failure) is StateStopped.
func (l *Loop) State() State {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.state
}

// Start spawns the loop; it is a no-op if it is already running.
// A loop that has stopped (by Stop or by itself) may be started again.
func (l *Loop) Start(ctx context.Context) error {
	l.controlLocker.Lock()
	defer l.controlLocker.Unlock()
	if l.State() == StateRunning {
		logger.Debugf(ctx, "the capture loop is already running")
		return nil
	}
	l.waitGroup.Wait()

	if l.wasStarted {
		if err := l.Device.Prepare(); err != nil {
			return fmt.Errorf("unable to prepare the device: %w", err)
		}
	}
	l.wasStarted = true
	l.isDeviceUp = true

	ctx, cancelFn := context.WithCancel(ctx)
	doneCh := make(chan struct{})
	l.locker.Lock()
	l.state = StateRunning
	l.cancelFunc = cancelFn
	l.doneCh = doneCh
	l.err = nil
	l.locker.Unlock()

	l.waitGroup.Add(1)
	observability.Go(ctx, func() {
		defer l.waitGroup.Done()
		defer cancelFn()
		err := l.loop(ctx)
		if err != nil {
			logger.Errorf(ctx, "the capture loop stopped: %v", err)
		}
		l.locker.Lock()
		l.err = err
		l.state = StateStopped
		l.locker.Unlock()
		close(doneCh)
	})
	return nil
}

// Stop ends the loop, waits for it and stops the device. It is idempotent;
// the device is stopped also if the loop has already ended by itself.
func (l *Loop) Stop() error {
	l.controlLocker.Lock()
	defer l.controlLocker.Unlock()

	l.locker.Lock()
	cancelFn := l.cancelFunc
	l.state = StateStopped
	l.locker.Unlock()

	if !l.isDeviceUp {
		return nil
	}
	l.isDeviceUp = false
	if cancelFn != nil {
		cancelFn()
	}
	l.waitGroup.Wait()

	if err := l.Device.Stop(); err != nil {
		return fmt.Errorf("unable to stop the device: %w", err)
	}
	return nil
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.doneCh
}

// Err returns the error that ended the last run, if it has ended.
func (l *Loop) Err() error {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.err
}

func (l *Loop) Stats() Stats {
	return Stats{
		Periods:    l.periods.Load(),
		XRuns:      l.xRuns.Load(),
		ShortReads: l.shortReads.Load(),
	}
}

func (l *Loop) loop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "capture loop")
	defer func() { logger.Debugf(ctx, "/capture loop: %v", _err) }()

	periodSize := l.Device.Format().BytesPerPeriod()
	if periodSize == 0 {
		return fmt.Errorf("invalid device format %s", l.Device.Format())
	}
	buf := make([]byte, periodSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := l.Device.ReadPeriod(ctx, buf)
		switch {
		case errors.Is(err, types.ErrXRun):
			l.xRuns.Add(1)
			logger.Warnf(ctx, "device buffer overrun, re-preparing the device")
			if err := l.Device.Prepare(); err != nil {
				return fmt.Errorf("unable to prepare the device after an overrun: %w", err)
			}
			continue
		case errors.Is(err, io.EOF):
			logger.Debugf(ctx, "the device has no more data")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("unable to read a period: %w", err)
		case uint64(n) != periodSize:
			l.shortReads.Add(1)
			logger.Warnf(ctx, "short read: %d of %d bytes; skipping", n, periodSize)
			continue
		}

		l.Buffer.Append(buf[:n])
		l.periods.Add(1)
	}
}
