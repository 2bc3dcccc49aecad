package stub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub(t *testing.T) {
	ctx := context.Background()

	t.Run("tracks_offset_across_calls", func(t *testing.T) {
		e, err := New(DefaultConfig())
		require.NoError(t, err)
		s, err := e.NewState(ctx, "A")
		require.NoError(t, err)

		// 0.5s of 16kHz mono S16LE
		chunk := make([]byte, 16000)
		text, err := s.Decode(ctx, chunk)
		require.NoError(t, err)
		assert.Equal(t, "0.00 0.50 chunk 1", text)

		text, err = s.Decode(ctx, chunk)
		require.NoError(t, err)
		assert.Equal(t, "0.50 1.00 chunk 2", text)
		assert.Equal(t, int64(1), e.StatesCount())

		require.NoError(t, s.Close())
		_, err = s.Decode(ctx, chunk)
		assert.Error(t, err)
	})

	t.Run("fixed_text_without_time", func(t *testing.T) {
		e, err := New(Config{SampleRate: 8000, Text: "this is a test"})
		require.NoError(t, err)
		s, err := e.NewState(ctx, "B")
		require.NoError(t, err)
		text, err := s.Decode(ctx, []byte{1, 2})
		require.NoError(t, err)
		assert.Equal(t, "this is a test", text)
	})

	t.Run("detects_concurrent_use", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DecodeDelay = 50 * time.Millisecond
		e, err := New(cfg)
		require.NoError(t, err)
		s, err := e.NewState(ctx, "C")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Decode(ctx, []byte{0, 0})
			}(i)
		}
		wg.Wait()
		failures := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, ErrConcurrentDecode)
				failures++
			}
		}
		assert.Equal(t, 1, failures)
	})

	t.Run("invalid_config", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}
