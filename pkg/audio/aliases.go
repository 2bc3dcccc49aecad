package audio

import (
	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type (
	SampleRate          = types.SampleRate
	Channel             = types.Channel
	PCMFormat           = types.PCMFormat
	Format              = types.Format
	CaptureDevice       = types.CaptureDevice
	CaptureDeviceOpener = types.CaptureDeviceOpener
)

const (
	PCMFormatU8        = types.PCMFormatU8
	PCMFormatS16LE     = types.PCMFormatS16LE
	PCMFormatS32LE     = types.PCMFormatS32LE
	PCMFormatFloat32LE = types.PCMFormatFloat32LE
)

var ErrXRun = types.ErrXRun

func DefaultFormat() Format {
	return types.DefaultFormat()
}
