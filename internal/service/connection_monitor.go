package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	app_errors "ragchat/client/internal/errors"
	"ragchat/client/internal/model"
	"ragchat/client/internal/remote"
)

// HealthProber checks whether a service endpoint is healthy.
type HealthProber interface {
	Health(ctx context.Context, endpoint string) (*remote.HealthResponse, error)
}

type MonitorOptions struct {
	Debounce      time.Duration
	RetryInterval time.Duration
	ProbeTimeout  time.Duration
}

func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{
		Debounce:      500 * time.Millisecond,
		RetryInterval: 30 * time.Second,
		ProbeTimeout:  10 * time.Second,
	}
}

// ConnectionMonitor tracks whether the service is reachable. A single
// goroutine owns the endpoint, the debounce timer, the retry ticker, and the
// probe in flight; everything else talks to it over channels. Results of a
// probe for an endpoint that has since been replaced are discarded.
type ConnectionMonitor struct {
	prober HealthProber
	opts   MonitorOptions

	mu    sync.RWMutex
	state model.ConnectionState

	endpoints chan string
	probes    chan chan model.ConnectionState
	results   chan probeResult

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type probeResult struct {
	generation uint64
	endpoint   string
	err        error
}

// NewConnectionMonitor starts the monitor loop. Close must be called to stop it.
func NewConnectionMonitor(prober HealthProber, opts MonitorOptions) *ConnectionMonitor {
	defaults := DefaultMonitorOptions()
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaults.RetryInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaults.ProbeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectionMonitor{
		prober:    prober,
		opts:      opts,
		state:     model.ConnectionState{Status: model.StatusDisconnected},
		endpoints: make(chan string),
		probes:    make(chan chan model.ConnectionState),
		results:   make(chan probeResult),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go m.run(ctx)
	return m
}

// SetEndpoint points the monitor at a new endpoint. A probe follows after
// the debounce delay; a burst of changes produces one probe for the last one.
func (m *ConnectionMonitor) SetEndpoint(endpoint string) {
	select {
	case m.endpoints <- remote.NormalizeBaseURL(endpoint):
	case <-m.done:
	}
}

// Probe checks the current endpoint now and returns the resulting state. If
// a probe is already running, it waits for that one instead of starting
// another.
func (m *ConnectionMonitor) Probe(ctx context.Context) model.ConnectionState {
	reply := make(chan model.ConnectionState, 1)
	select {
	case m.probes <- reply:
	case <-ctx.Done():
		return m.State()
	case <-m.done:
		return m.State()
	}
	select {
	case state := <-reply:
		return state
	case <-ctx.Done():
		return m.State()
	case <-m.done:
		return m.State()
	}
}

func (m *ConnectionMonitor) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *ConnectionMonitor) IsConnected() bool {
	return m.State().Status == model.StatusConnected
}

// Close stops the loop, cancels a probe in flight, and waits for both.
func (m *ConnectionMonitor) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
	})
}

func (m *ConnectionMonitor) setState(state model.ConnectionState) model.ConnectionState {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return state
}

func (m *ConnectionMonitor) run(ctx context.Context) {
	defer close(m.done)

	var (
		endpoint    string
		generation  uint64
		inFlight    bool
		cancelProbe context.CancelFunc
		waiters     []chan model.ConnectionState
		probesWG    sync.WaitGroup

		debounce  *time.Timer
		debounceC <-chan time.Time
		retry     *time.Ticker
		retryC    <-chan time.Time
	)

	stopDebounce := func() {
		if debounce != nil {
			debounce.Stop()
			debounce, debounceC = nil, nil
		}
	}
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
			retry, retryC = nil, nil
		}
	}
	notify := func(state model.ConnectionState) {
		for _, w := range waiters {
			w <- state
		}
		waiters = nil
	}
	startProbe := func() {
		if endpoint == "" {
			notify(m.State())
			return
		}
		if inFlight {
			return
		}
		inFlight = true
		m.setState(model.ConnectionState{Status: model.StatusConnecting, Endpoint: endpoint})

		pctx, pcancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
		cancelProbe = pcancel
		gen, target := generation, endpoint
		probesWG.Add(1)
		go func() {
			defer probesWG.Done()
			defer pcancel()
			_, err := m.prober.Health(pctx, target)
			select {
			case m.results <- probeResult{generation: gen, endpoint: target, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	defer func() {
		stopDebounce()
		stopRetry()
		if cancelProbe != nil {
			cancelProbe()
		}
		probesWG.Wait()
		notify(m.State())
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case next := <-m.endpoints:
			if next == endpoint {
				continue
			}
			endpoint = next
			generation++
			if cancelProbe != nil {
				cancelProbe()
				cancelProbe = nil
			}
			inFlight = false
			stopRetry()
			m.setState(model.ConnectionState{Status: model.StatusDisconnected, Endpoint: endpoint})
			slog.Debug("Connection endpoint changed.", "endpoint", endpoint)

			stopDebounce()
			if endpoint != "" {
				debounce = time.NewTimer(m.opts.Debounce)
				debounceC = debounce.C
			}

		case <-debounceC:
			debounce, debounceC = nil, nil
			startProbe()

		case <-retryC:
			startProbe()

		case reply := <-m.probes:
			waiters = append(waiters, reply)
			stopDebounce()
			startProbe()

		case res := <-m.results:
			if res.generation != generation {
				continue
			}
			inFlight = false
			cancelProbe = nil

			state := model.ConnectionState{Endpoint: res.endpoint, CheckedAt: time.Now().UTC()}
			if res.err == nil {
				state.Status = model.StatusConnected
				stopRetry()
				slog.Debug("Service is reachable.", "endpoint", res.endpoint)
			} else {
				state.Status = model.StatusError
				state.LastError = app_errors.ProbeMessage(res.err)
				if retry == nil {
					retry = time.NewTicker(m.opts.RetryInterval)
					retryC = retry.C
				}
				slog.Warn("Service is not reachable.", "endpoint", res.endpoint, "error", res.err)
			}
			notify(m.setState(state))
		}
	}
}
