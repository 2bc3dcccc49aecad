package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"

	"github.com/xaionaro-go/speechstream/pkg/audio"
	"github.com/xaionaro-go/speechstream/pkg/audio/backends/file"
	_ "github.com/xaionaro-go/speechstream/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/speechstream/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/speechstream/pkg/audio/capture"
	"github.com/xaionaro-go/speechstream/pkg/audio/chunkbuffer"
	"github.com/xaionaro-go/speechstream/pkg/client"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	serverAddr := pflag.String("server", client.DefaultServerAddress, "address of the decoding server")
	filePath := pflag.String("file", "", "decode this raw PCM file in a single request")
	streamFilePath := pflag.String("stream-file", "", "stream this raw PCM file in real time as if it was captured")
	useMic := pflag.Bool("mic", false, "stream from the microphone")
	timeout := pflag.Duration("timeout", 0, "stop recording after this duration (0 means never)")
	chunkDuration := pflag.Duration("chunk-duration", client.DefaultChunkDuration, "amount of audio sent per request")
	rpcTimeout := pflag.Duration("rpc-timeout", 0, "deadline of a single request (0 means no deadline)")
	defaultFormat := audio.DefaultFormat()
	sampleRate := pflag.Uint32("sample-rate", uint32(defaultFormat.SampleRate), "capture sample rate")
	channels := pflag.Uint32("channels", uint32(defaultFormat.Channels), "capture channels")
	periodFrames := pflag.Uint32("period-frames", defaultFormat.PeriodFrames, "frames per capture period")
	filter := pflag.Bool("filter", false, "print only the best hypothesis of a --file result")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	modes := 0
	for _, enabled := range []bool{*filePath != "", *streamFilePath != "", *useMic} {
		if enabled {
			modes++
		}
	}
	if modes != 1 {
		fatal(ctx, fmt.Errorf("exactly one of --file, --stream-file and --mic is expected"))
	}

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	conn, err := client.Dial(*serverAddr)
	if err != nil {
		fatal(ctx, err)
	}
	defer conn.Close()

	c := client.New(rpc.NewDecoderClient(conn), client.Config{
		ChunkDuration: *chunkDuration,
		Timeout:       *timeout,
		RPCTimeout:    *rpcTimeout,
	}, os.Stdout)

	if *filePath != "" {
		audioData, err := client.ReadAudioFile(ctx, *filePath)
		if err != nil {
			fatal(ctx, err)
		}
		text, err := c.DecodeSync(ctx, audioData)
		if err != nil {
			fatal(ctx, err)
		}
		if *filter {
			text = client.FilterResult(text)
		}
		fmt.Println(text)
		return
	}

	format := audio.Format{
		SampleRate:   audio.SampleRate(*sampleRate),
		Channels:     audio.Channel(*channels),
		PCMFormat:    audio.PCMFormatS16LE,
		PeriodFrames: *periodFrames,
	}

	var device audio.CaptureDevice
	if *streamFilePath != "" {
		device, err = file.Open(ctx, *streamFilePath, format, true)
	} else {
		device, err = audio.OpenCaptureDeviceAuto(ctx, format)
	}
	if err != nil {
		fatal(ctx, err)
	}
	defer func() {
		if err := device.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the capture device: %v", err)
		}
	}()

	buffer := chunkbuffer.New(device.Format())
	loop := capture.NewLoop(device, buffer)
	if err := loop.Start(ctx); err != nil {
		fatal(ctx, err)
	}
	logger.Infof(ctx, "recording (%s, session %s)", device.Format(), c.SessionToken)

	startedAt := time.Now()
	err = c.Stream(ctx, buffer, loop)
	stats := c.Stats()
	logger.Infof(ctx, "finished after %s: %+v, capture: %+v", time.Since(startedAt), stats, loop.Stats())
	if err != nil {
		fatal(ctx, err)
	}
}

func fatal(ctx context.Context, err error) {
	logger.Errorf(ctx, "%v", err)
	belt.Flush(ctx)
	os.Exit(1)
}
