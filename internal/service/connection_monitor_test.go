package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/remote"
	"ragchat/client/internal/service"
)

// fakeProber answers health probes from a per-endpoint script.
type fakeProber struct {
	mu      sync.Mutex
	calls   map[string]int
	failFor map[string]int // endpoint -> number of leading failures
	block   map[string]chan struct{}
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		calls:   make(map[string]int),
		failFor: make(map[string]int),
		block:   make(map[string]chan struct{}),
	}
}

func (p *fakeProber) Health(ctx context.Context, endpoint string) (*remote.HealthResponse, error) {
	p.mu.Lock()
	p.calls[endpoint]++
	call := p.calls[endpoint]
	failures := p.failFor[endpoint]
	block := p.block[endpoint]
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", app_errors.ErrTimeout, ctx.Err())
		}
	}
	if call <= failures {
		return nil, fmt.Errorf("%w: connection refused", app_errors.ErrTransport)
	}
	return &remote.HealthResponse{Status: "healthy"}, nil
}

func (p *fakeProber) Calls(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[endpoint]
}

func fastOptions() service.MonitorOptions {
	return service.MonitorOptions{
		Debounce:      20 * time.Millisecond,
		RetryInterval: 30 * time.Millisecond,
		ProbeTimeout:  time.Second,
	}
}

func TestConnectionMonitor_StartsDisconnected(t *testing.T) {
	m := service.NewConnectionMonitor(newFakeProber(), fastOptions())
	defer m.Close()

	assert.Equal(t, model.StatusDisconnected, m.State().Status)
	assert.Equal(t, model.StatusDisconnected, m.Probe(context.Background()).Status, "nothing to probe without an endpoint")
}

func TestConnectionMonitor_DebouncesEndpointChanges(t *testing.T) {
	prober := newFakeProber()
	m := service.NewConnectionMonitor(prober, fastOptions())
	defer m.Close()

	m.SetEndpoint("http://a.test")
	m.SetEndpoint("http://b.test")
	m.SetEndpoint("http://c.test/chat")

	assert.Eventually(t, func() bool { return m.IsConnected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "http://c.test", m.State().Endpoint)
	assert.Equal(t, 1, prober.Calls("http://c.test"))
	assert.Zero(t, prober.Calls("http://a.test"))
	assert.Zero(t, prober.Calls("http://b.test"))
}

func TestConnectionMonitor_RetriesUntilConnected(t *testing.T) {
	prober := newFakeProber()
	prober.failFor["http://flaky.test"] = 2
	m := service.NewConnectionMonitor(prober, fastOptions())
	defer m.Close()

	m.SetEndpoint("http://flaky.test")

	assert.Eventually(t, func() bool { return m.State().Status == model.StatusError }, time.Second, 2*time.Millisecond)
	assert.Equal(t, "Network error - is the server running?", m.State().LastError)

	assert.Eventually(t, func() bool { return m.IsConnected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, prober.Calls("http://flaky.test"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, prober.Calls("http://flaky.test"), "a connected monitor stops retrying")
}

func TestConnectionMonitor_DiscardsStaleProbe(t *testing.T) {
	prober := newFakeProber()
	release := make(chan struct{})
	prober.block["http://slow.test"] = release
	prober.failFor["http://slow.test"] = 1
	m := service.NewConnectionMonitor(prober, fastOptions())
	defer m.Close()

	m.SetEndpoint("http://slow.test")
	require.Eventually(t, func() bool { return prober.Calls("http://slow.test") == 1 }, time.Second, 2*time.Millisecond)

	m.SetEndpoint("http://fast.test")
	close(release)

	assert.Eventually(t, func() bool { return m.IsConnected() }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	state := m.State()
	assert.Equal(t, model.StatusConnected, state.Status)
	assert.Equal(t, "http://fast.test", state.Endpoint)
}

func TestConnectionMonitor_ProbeOnDemand(t *testing.T) {
	prober := newFakeProber()
	opts := fastOptions()
	opts.Debounce = time.Hour
	m := service.NewConnectionMonitor(prober, opts)
	defer m.Close()

	m.SetEndpoint("http://api.test")
	state := m.Probe(context.Background())

	assert.Equal(t, model.StatusConnected, state.Status)
	assert.False(t, state.CheckedAt.IsZero())
	assert.Equal(t, 1, prober.Calls("http://api.test"))
}

func TestConnectionMonitor_CloseCancelsProbe(t *testing.T) {
	prober := newFakeProber()
	prober.block["http://hang.test"] = make(chan struct{})
	m := service.NewConnectionMonitor(prober, fastOptions())

	m.SetEndpoint("http://hang.test")
	require.Eventually(t, func() bool { return prober.Calls("http://hang.test") == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, model.StatusConnecting, m.State().Status)

	m.Close()
	m.Close()
	m.SetEndpoint("http://other.test")
	assert.Equal(t, model.StatusConnecting, m.Probe(context.Background()).Status)
}
