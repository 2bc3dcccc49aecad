package types

import (
	"fmt"
	"time"
)

type SampleRate uint32

type Channel uint32

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS16BE
	PCMFormatS24LE
	PCMFormatS24BE
	PCMFormatS32LE
	PCMFormatS32BE
	PCMFormatFloat32LE
	PCMFormatFloat32BE
	PCMFormatS64LE
	PCMFormatS64BE
	PCMFormatFloat64LE
	PCMFormatFloat64BE
	EndOfPCMFormat
)

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "<undefined>"
	case PCMFormatU8:
		return "u8"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatS16BE:
		return "s16be"
	case PCMFormatS24LE:
		return "s24le"
	case PCMFormatS24BE:
		return "s24be"
	case PCMFormatS32LE:
		return "s32le"
	case PCMFormatS32BE:
		return "s32be"
	case PCMFormatFloat32LE:
		return "f32le"
	case PCMFormatFloat32BE:
		return "f32be"
	case PCMFormatS64LE:
		return "s64le"
	case PCMFormatS64BE:
		return "s64be"
	case PCMFormatFloat64LE:
		return "f64le"
	case PCMFormatFloat64BE:
		return "f64be"
	default:
		return fmt.Sprintf("<unknown_%d>", uint(f))
	}
}

// Size returns the amount of bytes of a single sample of a single channel.
func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE, PCMFormatS16BE:
		return 2
	case PCMFormatS24LE, PCMFormatS24BE:
		return 3
	case PCMFormatS32LE, PCMFormatS32BE, PCMFormatFloat32LE, PCMFormatFloat32BE:
		return 4
	case PCMFormatS64LE, PCMFormatS64BE, PCMFormatFloat64LE, PCMFormatFloat64BE:
		return 8
	default:
		return 0
	}
}

// Format describes raw interleaved PCM as it is transferred from a capture
// device: one period is PeriodFrames frames of Channels samples each.
type Format struct {
	SampleRate   SampleRate
	Channels     Channel
	PCMFormat    PCMFormat
	PeriodFrames uint32
}

func DefaultFormat() Format {
	return Format{
		SampleRate:   8000,
		Channels:     2,
		PCMFormat:    PCMFormatS16LE,
		PeriodFrames: 32,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%s:%dHz:%dch:%dframes", f.PCMFormat, f.SampleRate, f.Channels, f.PeriodFrames)
}

func (f Format) Validate() error {
	switch {
	case f.SampleRate == 0:
		return fmt.Errorf("sample rate is not set")
	case f.Channels == 0:
		return fmt.Errorf("channel count is not set")
	case f.PCMFormat.Size() == 0:
		return fmt.Errorf("unsupported PCM format %s", f.PCMFormat)
	case f.PeriodFrames == 0:
		return fmt.Errorf("period size is not set")
	}
	return nil
}

func (f Format) BytesPerFrame() uint64 {
	return uint64(f.Channels) * uint64(f.PCMFormat.Size())
}

// BytesPerPeriod is periodFrames * channels * bytesPerSample.
func (f Format) BytesPerPeriod() uint64 {
	return uint64(f.PeriodFrames) * f.BytesPerFrame()
}

// BytesPerMillisecond is sampleRate * channels * bytesPerSample / 1000.
func (f Format) BytesPerMillisecond() uint64 {
	return uint64(f.SampleRate) * f.BytesPerFrame() / 1000
}

func (f Format) PeriodDuration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.PeriodFrames) * time.Second / time.Duration(f.SampleRate)
}

// DurationToBytes returns the size of the amount of whole periods that fit
// into the given duration.
func (f Format) DurationToBytes(d time.Duration) uint64 {
	periodDuration := f.PeriodDuration()
	if periodDuration <= 0 || d <= 0 {
		return 0
	}
	return uint64(d/periodDuration) * f.BytesPerPeriod()
}

// BytesToDuration is the inverse of DurationToBytes for whole periods;
// a trailing partial period is accounted proportionally to its frames.
func (f Format) BytesToDuration(n uint64) time.Duration {
	periodBytes := f.BytesPerPeriod()
	if periodBytes == 0 {
		return 0
	}
	periods := n / periodBytes
	d := time.Duration(periods) * f.PeriodDuration()
	if rest := n % periodBytes; rest != 0 {
		frames := rest / f.BytesPerFrame()
		d += time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
	}
	return d
}
