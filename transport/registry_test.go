package transport

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock config for testing
type mockConfig struct {
	transport string
	natsURL   string
	prefix    string
}

func (m *mockConfig) GetTransport() string     { return m.transport }
func (m *mockConfig) GetNATSURL() string       { return m.natsURL }
func (m *mockConfig) GetSubjectPrefix() string { return m.prefix }

type mockTransport struct{ name string }

func (m *mockTransport) Dial(ctx context.Context, addr string) (Conn, error) { return nil, nil }
func (m *mockTransport) Listen(ctx context.Context, addr string, h Handler) (Listener, error) {
	return nil, nil
}
func (m *mockTransport) Close() error { return nil }

func mockBuilder(name string) Builder {
	return func(ctx context.Context, cfg Config, logger *slog.Logger) (Transport, error) {
		return &mockTransport{name: name}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegisterAndBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", mockBuilder("mock"))

	assert.True(t, reg.Has("mock"))
	assert.False(t, reg.Has("other"))
	assert.Equal(t, []string{"mock"}, reg.Names())

	tr, err := reg.Build(context.Background(), &mockConfig{transport: "mock"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", tr.(*mockTransport).name)
}

func TestRegistryBuildUnknownTransport(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(context.Background(), &mockConfig{transport: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestRegistryBuildNilConfig(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestRegistryBuilderErrorPropagates(t *testing.T) {
	reg := NewRegistry()
	sentinel := errors.New("boom")
	reg.Register("failing", func(ctx context.Context, cfg Config, logger *slog.Logger) (Transport, error) {
		return nil, sentinel
	})

	_, err := reg.Build(context.Background(), &mockConfig{transport: "failing"}, nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestRegistryCapabilities(t *testing.T) {
	reg := NewRegistry()
	caps := Capabilities{Name: "mock", InProcess: true}
	reg.RegisterWithCapabilities("mock", mockBuilder("mock"), caps)

	assert.Equal(t, caps, reg.GetCapabilities("mock"))

	// Unknown transports get a zero struct carrying the name.
	unknown := reg.GetCapabilities("mystery")
	assert.Equal(t, "mystery", unknown.Name)
	assert.False(t, unknown.InProcess)
}

func TestDefaultRegistryHelpers(t *testing.T) {
	original := DefaultRegistry
	defer func() { DefaultRegistry = original }()
	DefaultRegistry = NewRegistry()

	Register("mock", mockBuilder("mock"))
	RegisterWithCapabilities("caps", mockBuilder("caps"), Capabilities{Name: "caps"})

	tr, err := Build(context.Background(), &mockConfig{transport: "mock"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr)
	assert.Equal(t, "caps", GetCapabilities("caps").Name)
}

func TestCapabilitiesNetworked(t *testing.T) {
	assert.False(t, ChannelCapabilities.Networked())
	assert.True(t, NATSCapabilities.Networked())
}
