package audio

import (
	"context"
)

// CaptureDeviceDummy never captures anything: ReadPeriod blocks until
// the context is cancelled.
type CaptureDeviceDummy struct {
	CaptureFormat Format
}

var _ CaptureDevice = (*CaptureDeviceDummy)(nil)

func (d *CaptureDeviceDummy) Close() error {
	return nil
}

func (d *CaptureDeviceDummy) Format() Format {
	return d.CaptureFormat
}

func (d *CaptureDeviceDummy) ReadPeriod(ctx context.Context, buf []byte) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (d *CaptureDeviceDummy) Prepare() error {
	return nil
}

func (d *CaptureDeviceDummy) Stop() error {
	return nil
}
