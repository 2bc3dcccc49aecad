package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(n int) [][]byte {
	result := make([][]byte, n)
	for i := range result {
		result[i] = []byte{byte(i), 0}
	}
	return result
}

func TestStream(t *testing.T) {
	ctx := context.Background()

	t.Run("renders_in_completion_order", func(t *testing.T) {
		const count = 100
		transcriber := newGatedTranscriber(count)
		output := &lockedBuffer{}
		c := New(transcriber, Config{SessionToken: "A", ChunkDuration: time.Millisecond}, output)

		source := &chunkSource{chunks: chunks(count), chunkDuration: time.Millisecond}
		capture := newFakeCapture()

		streamErrCh := make(chan error, 1)
		go func() {
			streamErrCh <- c.Stream(ctx, source, capture)
		}()

		for i := 0; i < count; i++ {
			select {
			case req := <-transcriber.arrived:
				assert.Equal(t, uint32(i), req.AudioID)
				assert.Equal(t, "A", req.SessionToken)
			case <-time.After(5 * time.Second):
				t.Fatalf("request %d did not arrive", i)
			}
		}
		capture.End()

		var expected []string
		for i := count - 1; i >= 0; i-- {
			transcriber.release(uint32(i))
			expected = append(expected, fmt.Sprintf("%d", i))
			require.Eventually(t, func() bool {
				return len(output.Lines()) == len(expected)
			}, 5*time.Second, time.Millisecond)
		}

		require.NoError(t, <-streamErrCh)
		assert.Equal(t, expected, output.Lines())
		assert.Equal(t, Stats{Sent: count, Rendered: count}, c.Stats())
		assert.Zero(t, c.calls.Len())
		assert.Equal(t, 1, capture.Stops())
	})

	t.Run("failed_call_is_dropped", func(t *testing.T) {
		transcriber := newGatedTranscriber(4)
		transcriber.fail[1] = errors.New("connection reset")
		transcriber.refuse[3] = errors.New("connection closed")
		for i := uint32(0); i < 4; i++ {
			transcriber.release(i)
		}
		output := &lockedBuffer{}
		c := New(transcriber, Config{ChunkDuration: time.Millisecond}, output)
		source := &chunkSource{chunks: chunks(4), chunkDuration: time.Millisecond}
		capture := newFakeCapture()
		go func() {
			for source.Remaining() > 0 {
				time.Sleep(time.Millisecond)
			}
			capture.End()
		}()

		require.NoError(t, c.Stream(ctx, source, capture))
		assert.ElementsMatch(t, []string{"0", "2"}, output.Lines())
		assert.Equal(t, Stats{Sent: 4, Rendered: 2, Failed: 2}, c.Stats())
		assert.Zero(t, c.calls.Len())
	})

	t.Run("timeout_stops_recording", func(t *testing.T) {
		transcriber := &instantTranscriber{}
		output := &lockedBuffer{}
		c := New(transcriber, Config{
			ChunkDuration: 5 * time.Millisecond,
			Timeout:       30 * time.Millisecond,
		}, output)
		source := &chunkSource{infinite: true, chunkDuration: 5 * time.Millisecond}
		capture := newFakeCapture()

		startedAt := time.Now()
		require.NoError(t, c.Stream(ctx, source, capture))
		assert.GreaterOrEqual(t, time.Since(startedAt), 30*time.Millisecond)
		assert.Equal(t, 1, capture.Stops())

		requests := transcriber.Requests()
		require.NotEmpty(t, requests)
		for i, req := range requests {
			assert.Equal(t, uint32(i), req.AudioID)
			assert.Equal(t, c.SessionToken, req.SessionToken)
		}
		assert.Len(t, output.Lines(), len(requests))
	})

	t.Run("waits_for_a_full_chunk", func(t *testing.T) {
		transcriber := &instantTranscriber{}
		c := New(transcriber, Config{ChunkDuration: time.Hour}, &lockedBuffer{})
		source := &chunkSource{chunks: chunks(1), chunkDuration: time.Millisecond}
		capture := newFakeCapture()
		go func() {
			time.Sleep(20 * time.Millisecond)
			assert.Empty(t, transcriber.Requests())
			capture.End()
		}()

		require.NoError(t, c.Stream(ctx, source, capture))
		require.Len(t, transcriber.Requests(), 1)
	})

	t.Run("context_cancel", func(t *testing.T) {
		transcriber := &instantTranscriber{}
		c := New(transcriber, Config{ChunkDuration: 5 * time.Millisecond}, &lockedBuffer{})
		source := &chunkSource{infinite: true, chunkDuration: 5 * time.Millisecond}
		capture := newFakeCapture()
		cancelCtx, cancelFn := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancelFn()
		require.NoError(t, c.Stream(cancelCtx, source, capture))
		assert.Equal(t, c.Stats().Sent, c.Stats().Rendered)
	})
}

func TestDecodeSync(t *testing.T) {
	ctx := context.Background()
	transcriber := &instantTranscriber{}
	c := New(transcriber, Config{RPCTimeout: time.Second}, &lockedBuffer{})

	_, err := c.DecodeSync(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)
	assert.Empty(t, transcriber.Requests())

	text, err := c.DecodeSync(ctx, make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, "10 bytes", text)
	require.Len(t, transcriber.Requests(), 1)
	assert.NotEqual(t, c.SessionToken, transcriber.Requests()[0].SessionToken)
}
