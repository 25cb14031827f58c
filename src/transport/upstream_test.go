package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/segmentio/encoding/json"
)

func TestNewUpstream_createsServer(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{Transport: config.TransportStdio}, UpstreamOptions{Logger: testLogger()})
	if u.Server == nil {
		t.Fatal("expected non-nil server")
	}
}

func TestNewUpstream_advertisesImplementation(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{Transport: config.TransportStdio}, UpstreamOptions{Logger: testLogger()})

	srvTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = u.Server.Run(ctx, srvTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	init := session.InitializeResult()
	if init == nil || init.ServerInfo == nil {
		t.Fatal("expected initialize result with server info")
	}
	if init.ServerInfo.Name != ImplementationName {
		t.Errorf("server name = %q, want %q", init.ServerInfo.Name, ImplementationName)
	}
	if init.Instructions == "" {
		t.Error("expected instructions to be advertised")
	}
}

func TestUpstream_runUnsupported(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{Transport: "grpc"}, UpstreamOptions{Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // immediately cancelled
	err := u.Run(ctx)
	if err == nil {
		t.Fatal("expected error for unsupported transport")
	}
}

func TestUpstream_toolRegistration(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{Transport: config.TransportStdio}, UpstreamOptions{Logger: testLogger()})

	// Register a tool on the upstream server.
	u.Server.AddTool(&mcp.Tool{
		Name:        "test_tool",
		Description: "a test tool",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "response"}},
		}, nil
	})

	// Connect an in-memory client to verify the tool is discoverable.
	srvTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = u.Server.Run(ctx, srvTransport)
	}()

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "0.0.1"},
		nil,
	)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	// List tools.
	var tools []*mcp.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			t.Fatalf("listing tools: %v", err)
		}
		tools = append(tools, tool)
	}

	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Name != "test_tool" {
		t.Errorf("expected tool name test_tool, got %s", tools[0].Name)
	}

	// Call the tool.
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "test_tool"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Content))
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected *TextContent, got %T", result.Content[0])
	}
	if tc.Text != "response" {
		t.Errorf("expected text 'response', got %q", tc.Text)
	}
}

func TestInstructions_mentionSafeModeOnlyWhenEnabled(t *testing.T) {
	if strings.Contains(Instructions(false), "_array_length") {
		t.Error("disabled instructions should not describe sanitization")
	}
	if !strings.Contains(Instructions(true), "_array_length") {
		t.Error("enabled instructions should describe array collapse")
	}
}

func TestUpstream_healthReport(t *testing.T) {
	for _, safeMode := range []bool{false, true} {
		u := NewUpstream(config.UpstreamConfig{
			Transport: config.TransportHTTP,
			HTTP:      config.HTTPConfig{Addr: "127.0.0.1:0", Path: config.DefaultHTTPPath},
		}, UpstreamOptions{
			Logger:   testLogger(),
			SafeMode: safeMode,
			Servers: func() []ServerStatus {
				return []ServerStatus{
					{Name: "alpha", Transport: config.TransportStdio, State: StateConnected},
					{Name: "beta", Transport: config.TransportHTTP, State: StateConnected},
				}
			},
		})

		rec := httptest.NewRecorder()
		u.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got HealthReport
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding health report: %v", err)
		}
		if got.Status != "ok" || got.Name != ImplementationName || got.SafeMode != safeMode {
			t.Errorf("health report = %+v, want ok/%s/safeMode=%v", got, ImplementationName, safeMode)
		}
		if len(got.Servers) != 2 || got.Servers[0].Name != "alpha" || got.Servers[1].State != StateConnected {
			t.Errorf("servers = %+v, want alpha and beta connected", got.Servers)
		}
	}
}

func TestUpstream_healthReportDegraded(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{
		Transport: config.TransportHTTP,
		HTTP:      config.HTTPConfig{Path: config.DefaultHTTPPath},
	}, UpstreamOptions{
		Logger: testLogger(),
		Servers: func() []ServerStatus {
			return []ServerStatus{
				{Name: "up", State: StateConnected},
				{Name: "flaky", State: StateDown, Failures: 3, LastError: "connection refused"},
			}
		},
	})

	rec := httptest.NewRecorder()
	u.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

	var got HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding health report: %v", err)
	}
	if got.Status != "degraded" {
		t.Errorf("status = %q, want degraded", got.Status)
	}
	if got.Servers[1].LastError != "connection refused" || got.Servers[1].Failures != 3 {
		t.Errorf("flaky = %+v", got.Servers[1])
	}
}

func TestUpstream_serveStopsOnCancel(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{
		Transport: config.TransportHTTP,
		HTTP:      config.HTTPConfig{Path: config.DefaultHTTPPath},
	}, UpstreamOptions{Logger: testLogger(), ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + HealthPath)
	if err != nil {
		t.Fatalf("GET %s: %v", HealthPath, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
