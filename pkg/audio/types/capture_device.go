package types

import (
	"context"
	"errors"
	"io"
)

// ErrXRun is returned by CaptureDevice.ReadPeriod when the device buffer
// overran (or underran). The device needs Prepare before the next read.
var ErrXRun = errors.New("device buffer overrun/underrun")

// CaptureDevice is an opened and configured capture handle.
type CaptureDevice interface {
	io.Closer

	// Format returns the negotiated format, which may differ from the requested one.
	Format() Format

	// ReadPeriod blocks until one period is captured and copies it into buf.
	// A result shorter than len(buf) without an error is a short read.
	ReadPeriod(ctx context.Context, buf []byte) (int, error)

	// Prepare clears the error state after ErrXRun.
	Prepare() error

	// Stop drops the pending captured data and stops the hardware.
	Stop() error
}

type CaptureDeviceOpener interface {
	Ping(context.Context) error
	OpenCaptureDevice(ctx context.Context, format Format) (CaptureDevice, error)
}
