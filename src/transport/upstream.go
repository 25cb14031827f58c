package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/segmentio/encoding/json"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
)

// HealthPath serves the liveness report next to the MCP endpoint.
const HealthPath = "/healthz"

const defaultShutdownTimeout = 5 * time.Second

// UpstreamOptions configure an Upstream.
type UpstreamOptions struct {
	Logger *slog.Logger
	// SafeMode is advertised to clients in the server instructions and
	// the health report.
	SafeMode bool
	// ShutdownTimeout bounds HTTP shutdown; zero means 5s.
	ShutdownTimeout time.Duration
	// Servers reports downstream state for the health report. Optional.
	Servers func() []ServerStatus
}

// Upstream wraps the MCP server that faces the client consuming tool
// output. Tools are registered on Server before calling Run.
type Upstream struct {
	Server   *mcp.Server
	cfg      config.UpstreamConfig
	safeMode bool
	shutdown time.Duration
	servers  func() []ServerStatus
	logger   *slog.Logger
}

// NewUpstream creates an upstream MCP server configured for the given transport.
func NewUpstream(cfg config.UpstreamConfig, opts UpstreamOptions) *Upstream {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}

	srv := mcp.NewServer(
		&mcp.Implementation{
			Name:    ImplementationName,
			Version: Version,
		},
		&mcp.ServerOptions{Logger: logger, Instructions: Instructions(opts.SafeMode)},
	)
	return &Upstream{
		Server:   srv,
		cfg:      cfg,
		safeMode: opts.SafeMode,
		shutdown: shutdown,
		servers:  opts.Servers,
		logger:   logger.With("area", "upstream"),
	}
}

// Run starts the upstream server on the configured transport and blocks
// until ctx is cancelled or the transport closes.
func (u *Upstream) Run(ctx context.Context) error {
	switch u.cfg.Transport {
	case config.TransportStdio:
		u.logger.Info("starting stdio transport", "safeMode", u.safeMode)
		return u.Server.Run(ctx, &mcp.StdioTransport{})

	case config.TransportHTTP:
		ln, err := net.Listen("tcp", u.cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", u.cfg.HTTP.Addr, err)
		}
		return u.Serve(ctx, ln)

	default:
		return fmt.Errorf("unsupported upstream transport: %s", u.cfg.Transport)
	}
}

// Handler returns the HTTP handler serving the streamable MCP endpoint
// and the health report.
func (u *Upstream) Handler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return u.Server },
		&mcp.StreamableHTTPOptions{Logger: u.logger},
	)

	mux := http.NewServeMux()
	mux.Handle(u.cfg.HTTP.Path, mcpHandler)
	mux.HandleFunc("GET "+HealthPath, u.health)
	return mux
}

// Serve runs the HTTP transport on ln until ctx is cancelled.
func (u *Upstream) Serve(ctx context.Context, ln net.Listener) error {
	u.logger.Info("starting HTTP transport", "addr", ln.Addr(), "path", u.cfg.HTTP.Path, "safeMode", u.safeMode)

	srv := &http.Server{Handler: u.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		u.logger.Info("shutting down HTTP transport")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), u.shutdown)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// HealthReport is the body served at HealthPath. Status is "degraded"
// while any downstream server is down.
type HealthReport struct {
	Status   string         `json:"status"`
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	SafeMode bool           `json:"safeMode"`
	Servers  []ServerStatus `json:"servers,omitempty"`
}

func (u *Upstream) health(w http.ResponseWriter, _ *http.Request) {
	report := HealthReport{
		Status:   "ok",
		Name:     ImplementationName,
		Version:  Version,
		SafeMode: u.safeMode,
	}
	if u.servers != nil {
		report.Servers = u.servers()
	}
	for _, srv := range report.Servers {
		if srv.State != StateConnected {
			report.Status = "degraded"
		}
	}
	body, err := json.Marshal(report)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
