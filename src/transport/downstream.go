// Package transport manages MCP transport connections for upstream
// (client-facing) and downstream (server-facing) communication.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultPingTimeout bounds each liveness ping.
	DefaultPingTimeout = 5 * time.Second
	// DefaultMaxBackoff caps the health ticks skipped between reconnect
	// attempts to a failing server.
	DefaultMaxBackoff = 8
)

// ErrNoDownstream is returned when no configured server could be reached.
var ErrNoDownstream = errors.New("failed to connect to any downstream servers")

// DownstreamConn holds a live client session to a downstream MCP server
// along with the config that created it.
type DownstreamConn struct {
	Name    string
	Session *mcp.ClientSession
	Config  config.DownstreamConfig
}

// TransportFactory creates a Transport for a given downstream config.
// Exists to allow injection of test transports.
type TransportFactory func(config.DownstreamConfig) (mcp.Transport, error)

// ManagerOptions configure a DownstreamManager. Zero fields take defaults.
type ManagerOptions struct {
	Logger           *slog.Logger
	TransportFactory TransportFactory
	// HealthCheckInterval defaults to config.DefaultHealthCheckInterval.
	HealthCheckInterval time.Duration
	PingTimeout         time.Duration
	// MaxBackoff is counted in health check ticks.
	MaxBackoff int
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.TransportFactory == nil {
		o.TransportFactory = newTransport
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = config.DefaultHealthCheckInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	return o
}

// State is the connection state of one downstream server.
type State string

const (
	StateConnected State = "connected"
	StateDown      State = "down"
)

// ServerStatus is a snapshot of one configured downstream server, served
// in the health report.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	State     State  `json:"state"`
	// SafeModeOverride is set when the server carries its own safe mode
	// limits on top of the global ones.
	SafeModeOverride bool `json:"safeModeOverride,omitempty"`
	// Failures counts consecutive failed connects or pings.
	Failures   int    `json:"failures,omitempty"`
	Reconnects int    `json:"reconnects,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// server is the manager's record for one configured downstream.
type server struct {
	cfg        config.DownstreamConfig
	conn       *DownstreamConn // nil while down
	failures   int
	reconnects int
	lastErr    error
	// wait is the number of health ticks to let pass before the next
	// reconnect attempt.
	wait int
}

func (s *server) status() ServerStatus {
	st := ServerStatus{
		Name:             s.cfg.Name,
		Transport:        s.cfg.Transport,
		State:            StateDown,
		SafeModeOverride: s.cfg.SafeMode != nil,
		Failures:         s.failures,
		Reconnects:       s.reconnects,
	}
	if s.conn != nil {
		st.State = StateConnected
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// DownstreamManager keeps one client session per configured downstream
// server. A background loop pings live sessions and reconnects dead ones,
// backing off exponentially while a server keeps failing.
type DownstreamManager struct {
	mu      sync.RWMutex
	servers map[string]*server
	order   []string
	opts    ManagerOptions
	logger  *slog.Logger

	stop     context.CancelFunc
	loopDone chan struct{}
}

// NewDownstreamManager connects to every configured server. Servers that
// fail are logged and left to the health loop; only a total failure is an
// error.
func NewDownstreamManager(ctx context.Context, downstream []config.DownstreamConfig, opts ManagerOptions) (*DownstreamManager, error) {
	opts = opts.withDefaults()
	dm := &DownstreamManager{
		servers: make(map[string]*server, len(downstream)),
		order:   make([]string, 0, len(downstream)),
		opts:    opts,
		logger:  opts.Logger.With("area", "downstream"),
	}

	connected := 0
	for _, ds := range downstream {
		srv := &server{cfg: ds}
		dm.servers[ds.Name] = srv
		dm.order = append(dm.order, ds.Name)

		conn, err := dm.connect(ctx, ds)
		if err != nil {
			dm.logger.Error("failed to connect", "server", ds.Name, "err", err)
			srv.failures, srv.lastErr = 1, err
			continue
		}
		srv.conn = conn
		connected++
		dm.logger.Info("connected", "server", ds.Name, "transport", ds.Transport, "safeModeOverride", ds.SafeMode != nil)
	}

	if connected == 0 {
		return nil, ErrNoDownstream
	}

	hctx, cancel := context.WithCancel(ctx)
	dm.stop = cancel
	dm.loopDone = make(chan struct{})
	go dm.healthLoop(hctx)

	return dm, nil
}

// Session returns the active session for a named downstream server, or nil
// while it is down or unknown.
func (dm *DownstreamManager) Session(name string) *mcp.ClientSession {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if srv, ok := dm.servers[name]; ok && srv.conn != nil {
		return srv.conn.Session
	}
	return nil
}

// Names returns the names of connected servers, sorted.
func (dm *DownstreamManager) Names() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	var names []string
	for name, srv := range dm.servers {
		if srv.conn != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Conns returns a snapshot of all live connections.
func (dm *DownstreamManager) Conns() map[string]*DownstreamConn {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]*DownstreamConn, len(dm.servers))
	for name, srv := range dm.servers {
		if srv.conn != nil {
			out[name] = srv.conn
		}
	}
	return out
}

// Statuses reports every configured server in config order.
func (dm *DownstreamManager) Statuses() []ServerStatus {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]ServerStatus, 0, len(dm.order))
	for _, name := range dm.order {
		out = append(out, dm.servers[name].status())
	}
	return out
}

// Check runs one health pass over all servers: live sessions are pinged
// and down servers whose backoff has elapsed are reconnected.
func (dm *DownstreamManager) Check(ctx context.Context) {
	for _, name := range dm.order {
		if ctx.Err() != nil {
			return
		}
		dm.checkServer(ctx, name)
	}
}

// Close stops the health loop and closes every session.
func (dm *DownstreamManager) Close() {
	if dm.stop != nil {
		dm.stop()
		<-dm.loopDone
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	for name, srv := range dm.servers {
		if srv.conn == nil {
			continue
		}
		if err := srv.conn.Session.Close(); err != nil {
			dm.logger.Error("error closing session", "server", name, "err", err)
		}
		srv.conn = nil
	}
}

func (dm *DownstreamManager) healthLoop(ctx context.Context) {
	defer close(dm.loopDone)
	ticker := time.NewTicker(dm.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.Check(ctx)
		}
	}
}

func (dm *DownstreamManager) checkServer(ctx context.Context, name string) {
	dm.mu.Lock()
	srv := dm.servers[name]
	conn := srv.conn
	if conn == nil && srv.wait > 0 {
		srv.wait--
		dm.mu.Unlock()
		return
	}
	dm.mu.Unlock()

	if conn != nil {
		pingCtx, cancel := context.WithTimeout(ctx, dm.opts.PingTimeout)
		err := conn.Session.Ping(pingCtx, &mcp.PingParams{})
		cancel()
		if err == nil {
			return
		}
		dm.logger.Warn("health check failed, reconnecting", "server", name, "err", err)
		_ = conn.Session.Close()

		dm.mu.Lock()
		srv.conn = nil
		dm.mu.Unlock()
	}

	newConn, err := dm.connect(ctx, srv.cfg)

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err != nil {
		srv.failures++
		srv.lastErr = err
		srv.wait = backoff(srv.failures, dm.opts.MaxBackoff)
		dm.logger.Error("reconnect failed", "server", name, "err", err, "failures", srv.failures, "nextAttemptInTicks", srv.wait+1)
		return
	}
	srv.conn = newConn
	srv.failures, srv.lastErr, srv.wait = 0, nil, 0
	srv.reconnects++
	dm.logger.Info("reconnected", "server", name, "reconnects", srv.reconnects)
}

// backoff returns how many ticks to skip after the given number of
// consecutive failures: 0, 1, 3, 7, ... capped at limit.
func backoff(failures, limit int) int {
	if failures <= 1 {
		return 0
	}
	return min(1<<min(failures-1, 16)-1, limit)
}

func (dm *DownstreamManager) connect(ctx context.Context, ds config.DownstreamConfig) (*DownstreamConn, error) {
	client := mcp.NewClient(
		&mcp.Implementation{Name: ImplementationName, Version: Version},
		&mcp.ClientOptions{Logger: dm.logger},
	)

	t, err := dm.opts.TransportFactory(ds)
	if err != nil {
		return nil, fmt.Errorf("creating transport for %s: %w", ds.Name, err)
	}
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", ds.Name, err)
	}
	return &DownstreamConn{Name: ds.Name, Session: session, Config: ds}, nil
}

func newTransport(ds config.DownstreamConfig) (mcp.Transport, error) {
	switch ds.Transport {
	case config.TransportStdio:
		if len(ds.Command) == 0 {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return &mcp.CommandTransport{Command: exec.Command(ds.Command[0], ds.Command[1:]...)}, nil
	case config.TransportHTTP:
		if ds.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return &mcp.StreamableClientTransport{Endpoint: ds.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", ds.Transport)
	}
}
