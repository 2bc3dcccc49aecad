package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/speechstream/pkg/audio/chunkbuffer"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

// RecordFor captures from the device for the given duration and returns
// everything captured. If the device fails, what was captured before the
// failure is returned together with the error.
func RecordFor(
	ctx context.Context,
	device types.CaptureDevice,
	duration time.Duration,
) (_ []byte, _err error) {
	logger.Debugf(ctx, "RecordFor: %s", duration)
	defer func() { logger.Debugf(ctx, "/RecordFor: %s: %v", duration, _err) }()

	buffer := chunkbuffer.New(device.Format())
	loop := NewLoop(device, buffer)
	if err := loop.Start(ctx); err != nil {
		return nil, err
	}

	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-loop.Done():
	}

	stopErr := loop.Stop()
	result := buffer.ConsumeAll()
	if err := loop.Err(); err != nil {
		return result, err
	}
	if stopErr != nil {
		return result, fmt.Errorf("unable to stop capturing: %w", stopErr)
	}
	return result, nil
}
