package client

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// ReadAudioFile reads a whole raw PCM file.
func ReadAudioFile(ctx context.Context, path string) ([]byte, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	logger.Debugf(ctx, "read %d bytes of audio from '%s'", len(audio), path)
	return audio, nil
}
