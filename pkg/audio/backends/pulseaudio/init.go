package pulseaudio

import (
	"github.com/xaionaro-go/speechstream/pkg/audio/registry"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

const (
	Priority = 100
)

func init() {
	registry.RegisterCaptureFactory(Priority, CaptureDevicePulseFactory{})
}

type CaptureDevicePulseFactory struct{}

func (CaptureDevicePulseFactory) NewCaptureDeviceOpener() (types.CaptureDeviceOpener, error) {
	return NewCaptureDeviceOpener()
}
