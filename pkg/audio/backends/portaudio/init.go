package portaudio

import (
	"github.com/xaionaro-go/speechstream/pkg/audio/registry"
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterCaptureFactory(Priority, CaptureDeviceFactory{})
}

type CaptureDeviceFactory struct{}

func (CaptureDeviceFactory) NewCaptureDeviceOpener() (types.CaptureDeviceOpener, error) {
	return NewCaptureDeviceOpener()
}
