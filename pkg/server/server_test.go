package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/xaionaro-go/speechstream/pkg/client"
	"github.com/xaionaro-go/speechstream/pkg/completion"
	"github.com/xaionaro-go/speechstream/pkg/decoder/implementations/stub"
	"github.com/xaionaro-go/speechstream/pkg/metrics"
	"github.com/xaionaro-go/speechstream/pkg/rpc"
	"github.com/xaionaro-go/speechstream/pkg/session"
)

type transitionRecorder struct {
	locker      sync.Mutex
	transitions map[completion.Tag][]completion.CallState
}

func (r *transitionRecorder) record(tag completion.Tag, from, to completion.CallState) {
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.transitions == nil {
		r.transitions = map[completion.Tag][]completion.CallState{}
	}
	if len(r.transitions[tag]) == 0 {
		r.transitions[tag] = append(r.transitions[tag], from)
	}
	r.transitions[tag] = append(r.transitions[tag], to)
}

func (r *transitionRecorder) snapshot() map[completion.Tag][]completion.CallState {
	r.locker.Lock()
	defer r.locker.Unlock()
	result := map[completion.Tag][]completion.CallState{}
	for k, v := range r.transitions {
		result[k] = append([]completion.CallState(nil), v...)
	}
	return result
}

type testEnv struct {
	Server   *Server
	Engine   *stub.Engine
	Registry *session.Registry
	Metrics  *metrics.Server
	Conn     *grpc.ClientConn
	Recorder *transitionRecorder

	cancelFn context.CancelFunc
	serveErr chan error
}

func newTestEnv(t *testing.T, workers uint, stubCfg stub.Config) *testEnv {
	ctx, cancelFn := context.WithCancel(context.Background())

	engine, err := stub.New(stubCfg)
	require.NoError(t, err)
	registry, err := session.NewRegistry(ctx, engine, true)
	require.NoError(t, err)

	m := metrics.NewServer(prometheus.NewRegistry())
	srv := New(registry, workers, m)
	recorder := &transitionRecorder{}
	srv.OnCallStateChange = recorder.record

	listener := bufconn.Listen(1 << 20)
	env := &testEnv{
		Server:   srv,
		Engine:   engine,
		Registry: registry,
		Metrics:  m,
		Recorder: recorder,
		cancelFn: cancelFn,
		serveErr: make(chan error, 1),
	}
	go func() {
		env.serveErr <- srv.Serve(ctx, listener)
	}()

	conn, err := client.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}))
	require.NoError(t, err)
	env.Conn = conn
	return env
}

func (env *testEnv) stop(t *testing.T) {
	env.Conn.Close()
	env.cancelFn()
	select {
	case err := <-env.serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("the server did not stop")
	}
	require.NoError(t, env.Registry.Close())
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	t.Run("decode_and_sessions", func(t *testing.T) {
		env := newTestEnv(t, 2, stub.DefaultConfig())
		dc := rpc.NewDecoderClient(env.Conn)

		resp, err := dc.DecodeAudio(ctx, &rpc.AudioData{SessionToken: "A", AudioID: 0, Audio: make([]byte, 16000)})
		require.NoError(t, err)
		assert.Equal(t, "A", resp.SessionToken)
		assert.Equal(t, uint32(0), resp.AudioID)
		assert.Equal(t, "0.00 0.50 chunk 1", resp.Text)

		resp, err = dc.DecodeAudio(ctx, &rpc.AudioData{SessionToken: "A", AudioID: 1, Audio: make([]byte, 16000)})
		require.NoError(t, err)
		assert.Equal(t, "0.50 1.00 chunk 2", resp.Text)

		resp, err = dc.DecodeAudio(ctx, &rpc.AudioData{SessionToken: "B", AudioID: 0, Audio: make([]byte, 32)})
		require.NoError(t, err)
		assert.Equal(t, "0.00 0.00 chunk 1", resp.Text)

		assert.Equal(t, 2, env.Registry.Len())
		assert.Equal(t, int64(2), env.Engine.StatesCount())
		assert.Equal(t, float64(3), testutil.ToFloat64(env.Metrics.Requests))
		assert.Equal(t, float64(2), testutil.ToFloat64(env.Metrics.Sessions))

		env.stop(t)
		assert.Zero(t, env.Server.OutstandingCalls())
	})

	t.Run("invalid_requests", func(t *testing.T) {
		env := newTestEnv(t, 1, stub.DefaultConfig())
		defer env.stop(t)
		dc := rpc.NewDecoderClient(env.Conn)

		_, err := dc.DecodeAudio(ctx, &rpc.AudioData{SessionToken: "A"})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		_, err = dc.DecodeAudio(ctx, &rpc.AudioData{Audio: []byte{1, 2}})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Equal(t, float64(2), testutil.ToFloat64(env.Metrics.Failures.WithLabelValues("invalid_argument")))

		_, err = dc.DecodeAudio(ctx, &rpc.AudioData{SessionToken: "A", Audio: []byte{1, 2}})
		assert.NoError(t, err)
	})

	t.Run("every_call_goes_through_all_states_once", func(t *testing.T) {
		cfg := stub.DefaultConfig()
		cfg.DecodeDelay = 2 * time.Millisecond
		const workers = 3
		env := newTestEnv(t, workers, cfg)
		dc := rpc.NewDecoderClient(env.Conn)

		const requests = 60
		var wg sync.WaitGroup
		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := dc.DecodeAudio(ctx, &rpc.AudioData{
					SessionToken: fmt.Sprintf("session-%d", i%4),
					AudioID:      uint32(i / 4),
					Audio:        make([]byte, 320),
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		require.Eventually(t, func() bool {
			return env.Server.OutstandingCalls() == workers
		}, 5*time.Second, time.Millisecond)

		env.stop(t)
		assert.Zero(t, env.Server.OutstandingCalls())

		processed, cancelled := 0, 0
		for tag, states := range env.Recorder.snapshot() {
			switch len(states) {
			case 3:
				assert.Equal(t, []completion.CallState{
					completion.CallStateCreated,
					completion.CallStateProcessing,
					completion.CallStateFinished,
				}, states, "call %s", tag)
				processed++
			case 2:
				assert.Equal(t, []completion.CallState{
					completion.CallStateCreated,
					completion.CallStateFinished,
				}, states, "call %s", tag)
				cancelled++
			default:
				t.Errorf("call %s has unexpected transitions %v", tag, states)
			}
		}
		assert.Equal(t, requests, processed)
		assert.Equal(t, workers, cancelled)
		assert.Equal(t, int64(4), env.Engine.StatesCount())
	})

	t.Run("streaming_client", func(t *testing.T) {
		env := newTestEnv(t, 2, stub.Config{SampleRate: 16000, Text: "this is a test"})
		defer env.stop(t)

		output := &lockedLines{}
		c := client.New(rpc.NewDecoderClient(env.Conn), client.Config{
			ChunkDuration: time.Millisecond,
			RPCTimeout:    5 * time.Second,
		}, output)
		source := newFixedSource(5)
		require.NoError(t, c.Stream(ctx, source, source))
		assert.Equal(t, client.Stats{Sent: 5, Rendered: 5}, c.Stats())
		assert.Equal(t, 5, output.Count())
		assert.Equal(t, 1, env.Registry.Len())
	})
}

type fixedSource struct {
	locker sync.Mutex
	chunks int
	doneCh chan struct{}
}

func newFixedSource(chunks int) *fixedSource {
	return &fixedSource{chunks: chunks, doneCh: make(chan struct{})}
}

func (s *fixedSource) AvailableDuration() time.Duration {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.chunks > 0 {
		return time.Second
	}
	return 0
}

func (s *fixedSource) ConsumeAll() []byte {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.chunks == 0 {
		return nil
	}
	s.chunks--
	if s.chunks == 0 {
		close(s.doneCh)
	}
	return make([]byte, 320)
}

func (s *fixedSource) Done() <-chan struct{} {
	return s.doneCh
}

func (s *fixedSource) Stop() error {
	return nil
}

type lockedLines struct {
	locker sync.Mutex
	count  int
}

func (l *lockedLines) Write(p []byte) (int, error) {
	l.locker.Lock()
	defer l.locker.Unlock()
	for _, b := range p {
		if b == '\n' {
			l.count++
		}
	}
	return len(p), nil
}

func (l *lockedLines) Count() int {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.count
}
