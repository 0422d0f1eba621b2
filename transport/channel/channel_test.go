package channel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reqflow/transport"
)

type mockConfig struct{}

func (m *mockConfig) GetTransport() string     { return TransportName }
func (m *mockConfig) GetNATSURL() string       { return "" }
func (m *mockConfig) GetSubjectPrefix() string { return "" }

func buildTransport(t *testing.T) transport.Transport {
	t.Helper()
	tr, err := Build(context.Background(), &mockConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRegisteredWithDefaultRegistry(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.InProcess)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildUsesCustomFactory(t *testing.T) {
	originalFactory := Factory
	defer func() { Factory = originalFactory }()

	var gotCfg gochannel.Config
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
		gotCfg = cfg
		return gochannel.NewGoChannel(cfg, logger)
	}

	tr, err := Build(context.Background(), &mockConfig{}, nil)
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, int64(64), gotCfg.OutputChannelBuffer)
}

func TestRequestReplyRoundTrip(t *testing.T) {
	tr := buildTransport(t)
	ctx := context.Background()

	listener, err := tr.Listen(ctx, "channel://echo", func(ctx context.Context, req []byte) []byte {
		return append([]byte("echo: "), req...)
	})
	require.NoError(t, err)
	defer listener.Close()
	assert.Equal(t, "channel://echo", listener.Addr())

	conn, err := tr.Dial(ctx, "channel://echo")
	require.NoError(t, err)
	defer conn.Close()

	rep, err := conn.Send(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("echo: hello"), rep)
}

func TestConcurrentSendsMatchReplies(t *testing.T) {
	tr := buildTransport(t)
	ctx := context.Background()

	_, err := tr.Listen(ctx, "channel://double", func(ctx context.Context, req []byte) []byte {
		return bytes.Repeat(req, 2)
	})
	require.NoError(t, err)

	conn, err := tr.Dial(ctx, "channel://double")
	require.NoError(t, err)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i)}
			rep, err := conn.Send(ctx, payload)
			assert.NoError(t, err)
			assert.Equal(t, bytes.Repeat(payload, 2), rep)
		}(i)
	}
	wg.Wait()
}

func TestSendOnClosedConn(t *testing.T) {
	tr := buildTransport(t)
	ctx := context.Background()

	conn, err := tr.Dial(ctx, "channel://nowhere")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Send(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendHonorsContextWithoutListener(t *testing.T) {
	tr := buildTransport(t)

	conn, err := tr.Dial(context.Background(), "channel://void")
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conn.Send(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListenerCloseStopsServing(t *testing.T) {
	tr := buildTransport(t)
	ctx := context.Background()

	listener, err := tr.Listen(ctx, "channel://stop", func(ctx context.Context, req []byte) []byte {
		return req
	})
	require.NoError(t, err)

	conn, err := tr.Dial(ctx, "channel://stop")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Send(ctx, []byte("before"))
	require.NoError(t, err)

	require.NoError(t, listener.Close())

	sendCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = conn.Send(sendCtx, []byte("after"))
	assert.Error(t, err)
}

func TestTopicOf(t *testing.T) {
	assert.Equal(t, "svc/1", topicOf("channel://svc/1"))
	assert.Equal(t, "plain", topicOf("plain"))
}
