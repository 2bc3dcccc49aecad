package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/speechstream/pkg/audio/registry"
)

var (
	lastSuccessfulCaptureFactory       registry.CaptureDeviceFactory
	lastSuccessfulCaptureFactoryLocker sync.Mutex
)

func getLastSuccessfulCaptureFactory() registry.CaptureDeviceFactory {
	lastSuccessfulCaptureFactoryLocker.Lock()
	defer lastSuccessfulCaptureFactoryLocker.Unlock()
	return lastSuccessfulCaptureFactory
}

func setLastSuccessfulCaptureFactory(factory registry.CaptureDeviceFactory) {
	lastSuccessfulCaptureFactoryLocker.Lock()
	defer lastSuccessfulCaptureFactoryLocker.Unlock()
	lastSuccessfulCaptureFactory = factory
}

func openWithFactory(
	ctx context.Context,
	factory registry.CaptureDeviceFactory,
	format Format,
) (CaptureDevice, error) {
	opener, err := factory.NewCaptureDeviceOpener()
	logger.Debugf(ctx, "initializing capture device opener %T result is %v", opener, err)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize %T: %w", factory, err)
	}

	err = opener.Ping(ctx)
	logger.Debugf(ctx, "pinging capture device opener %T result is %v", opener, err)
	if err != nil {
		closeOpener(ctx, opener)
		return nil, fmt.Errorf("unable to ping %T: %w", opener, err)
	}

	dev, err := opener.OpenCaptureDevice(ctx, format)
	if err != nil {
		closeOpener(ctx, opener)
		return nil, fmt.Errorf("unable to open a capture device using %T: %w", opener, err)
	}
	return dev, nil
}

// closeOpener releases an opener that did not produce a device; openers
// that produced one stay alive with it.
func closeOpener(ctx context.Context, opener CaptureDeviceOpener) {
	closer, ok := opener.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Debugf(ctx, "unable to close %T: %v", opener, err)
	}
}

// OpenCaptureDeviceAuto opens a capture device using the first backend
// (by priority) that works. The backend that worked last time is tried first.
func OpenCaptureDeviceAuto(
	ctx context.Context,
	format Format,
) (CaptureDevice, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format %s: %w", format, err)
	}

	if factory := getLastSuccessfulCaptureFactory(); factory != nil {
		dev, err := openWithFactory(ctx, factory, format)
		if err == nil {
			return dev, nil
		}
		logger.Debugf(ctx, "the last successful capture backend %T failed this time: %v", factory, err)
	}

	var mErr *multierror.Error
	for _, factory := range registry.CaptureFactories() {
		dev, err := openWithFactory(ctx, factory, format)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}

		setLastSuccessfulCaptureFactory(factory)
		logger.Infof(ctx, "opened capture device %T with format %s", dev, dev.Format())
		return dev, nil
	}

	logger.Infof(ctx, "was unable to initialize any capture device")
	if mErr == nil {
		return nil, fmt.Errorf("no capture backends are registered")
	}
	return nil, mErr.ErrorOrNil()
}
