package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"

	"github.com/xaionaro-go/speechstream/pkg/audio"
	_ "github.com/xaionaro-go/speechstream/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/speechstream/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/speechstream/pkg/audio/capture"
)

func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	duration := pflag.Duration("duration", 5*time.Second, "how long to record")
	outputPath := pflag.String("output", "", "write to this file instead of stdout")
	defaultFormat := audio.DefaultFormat()
	sampleRate := pflag.Uint32("sample-rate", uint32(defaultFormat.SampleRate), "sample rate")
	channels := pflag.Uint32("channels", uint32(defaultFormat.Channels), "channels")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	var output io.Writer = os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		assertNoError(err)
		defer func() {
			assertNoError(f.Close())
		}()
		output = f
	}
	wc := datacounter.NewWriterCounter(output)

	format := defaultFormat
	format.SampleRate = audio.SampleRate(*sampleRate)
	format.Channels = audio.Channel(*channels)

	logger.Infof(ctx, "starting...")
	device, err := audio.OpenCaptureDeviceAuto(ctx, format)
	assertNoError(err)
	defer func() {
		assertNoError(device.Close())
	}()
	logger.Infof(ctx, "recording %s as %s (%T)", *duration, device.Format(), device)

	recorded, err := capture.RecordFor(ctx, device, *duration)
	if err != nil {
		logger.Errorf(ctx, "the recording was interrupted: %v", err)
	}
	_, err = wc.Write(recorded)
	assertNoError(err)
	logger.Infof(ctx, "written: %d", wc.Count())
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
