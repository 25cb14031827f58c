// Package gateway wires upstream and downstream transports together,
// turning every proxied tool result into messages built through the
// safe mode interceptor.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/message"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/sanitizer"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/transport"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

const namespaceSep = "__"

// SafeMode is the process-wide safe mode state handed to the registry.
type SafeMode struct {
	Enabled bool
	Global  config.SafeModeConfig
	// Base is the unwrapped message constructor; nil means message.New.
	Base message.Constructor
}

// Registry discovers tools from downstream servers, namespaces them, and
// registers proxy handlers on the upstream server. With safe mode on,
// each proxied result is rebuilt from sanitized messages.
type Registry struct {
	upstream   *transport.Upstream
	downstream *transport.DownstreamManager
	safeMode   SafeMode
	logger     *slog.Logger
}

// NewRegistry creates a registry wired to the given upstream/downstream pair.
func NewRegistry(
	upstream *transport.Upstream,
	downstream *transport.DownstreamManager,
	safeMode SafeMode,
	logger *slog.Logger,
) *Registry {
	if safeMode.Base == nil {
		safeMode.Base = message.New
	}
	return &Registry{
		upstream:   upstream,
		downstream: downstream,
		safeMode:   safeMode,
		logger:     logger.With("area", "registry"),
	}
}

// DiscoverAndRegister iterates all downstream connections, discovers their
// tools, and registers namespaced proxy handlers on the upstream server.
// Returns the total number of tools registered.
func (r *Registry) DiscoverAndRegister(ctx context.Context) (int, error) {
	total := 0

	for name, conn := range r.downstream.Conns() {
		var p *policy
		if r.safeMode.Enabled {
			merged := config.Merge(&r.safeMode.Global, conn.Config.SafeMode)
			p = newPolicy(merged, r.safeMode.Base, r.logger.With("server", name))
		}

		count, err := r.registerServer(ctx, name, conn.Session, p)
		if err != nil {
			return total, fmt.Errorf("registering tools for %s: %w", name, err)
		}

		r.logger.Info("registered tools", "server", name, "count", count, "safeMode", r.safeMode.Enabled)
		total += count
	}

	if total == 0 {
		return 0, fmt.Errorf("no tools discovered from any downstream server")
	}
	return total, nil
}

func (r *Registry) registerServer(
	ctx context.Context,
	serverName string,
	session *mcp.ClientSession,
	p *policy,
) (int, error) {
	count := 0
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return count, fmt.Errorf("listing tools: %w", err)
		}

		namespacedName := serverName + namespaceSep + tool.Name

		proxied := proxyTool(tool, namespacedName)
		handler := proxyHandler(r.downstream, serverName, tool.Name, namespacedName, p)
		r.upstream.Server.AddTool(proxied, handler)

		count++
	}
	return count, nil
}

// BuildConstructor returns the safe mode constructor for one downstream
// server, built from its merged config.
func BuildConstructor(cfg config.SafeModeConfig, base message.Constructor, logger *slog.Logger) message.Constructor {
	opts := cfg.Options(true)
	opts.Logger = logger
	return message.Intercept(base, opts)
}

// policy is the per-server safe mode state used by proxy handlers.
type policy struct {
	ctor message.Constructor
	// text pre-sanitizes JSON text content; nil when content is not a
	// sanitized field.
	text *sanitizer.Sanitizer
}

func newPolicy(cfg config.SafeModeConfig, base message.Constructor, logger *slog.Logger) *policy {
	p := &policy{ctor: BuildConstructor(cfg, base, logger)}
	if opts := cfg.Options(true); opts.Covers(message.FieldContent) {
		p.text = opts.Sanitizer()
	}
	return p
}

// proxyTool creates a copy of the downstream tool with a namespaced name.
func proxyTool(original *mcp.Tool, namespacedName string) *mcp.Tool {
	return &mcp.Tool{
		Name:        namespacedName,
		Description: original.Description,
		InputSchema: original.InputSchema,
		Annotations: original.Annotations,
		Title:       original.Title,
	}
}

// proxyHandler returns a ToolHandler that forwards calls to the downstream
// session. A nil policy means safe mode is off and results are returned
// untouched. It looks up the session at call time so that reconnected
// sessions are used automatically.
func proxyHandler(
	dm *transport.DownstreamManager,
	serverName string,
	downstreamName string,
	namespacedName string,
	p *policy,
) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		session := dm.Session(serverName)
		if session == nil {
			return nil, fmt.Errorf("downstream %s not connected", serverName)
		}

		// Forward to downstream with original tool name.
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      downstreamName,
			Arguments: req.Params.Arguments,
		})
		if err != nil {
			return nil, fmt.Errorf("downstream call %s: %w", namespacedName, err)
		}

		if p == nil {
			return result, nil
		}
		return sanitizeResult(result, namespacedName, p)
	}
}

// sanitizeResult routes the result through the policy's constructor. Each
// TextContent becomes one message and is replaced only when sanitizing
// rewrote it, so clean text is forwarded byte for byte. StructuredContent
// and _meta become the content and metadata of another message.
func sanitizeResult(
	result *mcp.CallToolResult,
	toolName string,
	p *policy,
) (*mcp.CallToolResult, error) {
	ctor := p.ctor
	for i, content := range result.Content {
		tc, ok := content.(*mcp.TextContent)
		if !ok {
			continue
		}

		v, rewritten := textValue(tc.Text, p.text)
		msg, err := ctor(message.Params{
			Name:    toolName,
			Role:    message.RoleTool,
			Content: v,
		})
		if err != nil {
			return nil, fmt.Errorf("building message for %s: %w", toolName, err)
		}
		if !rewritten && value.Equal(msg.Content, v) {
			continue
		}

		text, err := renderText(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("rendering %s content: %w", toolName, err)
		}
		result.Content[i] = &mcp.TextContent{
			Text:        text,
			Annotations: tc.Annotations,
		}
	}

	if result.StructuredContent == nil && len(result.Meta) == 0 {
		return result, nil
	}

	structured, err := value.FromAny(result.StructuredContent)
	if err != nil {
		return nil, fmt.Errorf("reading %s structured content: %w", toolName, err)
	}
	meta, err := value.FromAny(map[string]any(result.Meta))
	if err != nil {
		return nil, fmt.Errorf("reading %s metadata: %w", toolName, err)
	}

	msg, err := ctor(message.Params{
		Name:     toolName,
		Role:     message.RoleTool,
		Content:  structured,
		Metadata: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("building message for %s: %w", toolName, err)
	}

	if result.StructuredContent != nil {
		result.StructuredContent = msg.Content
	}
	if len(result.Meta) > 0 {
		if m, ok := msg.Metadata.ToAny().(map[string]any); ok {
			result.Meta = mcp.Meta(m)
		}
	}
	return result, nil
}

// textValue reads text as JSON when it holds an object or array and
// otherwise as a plain string. JSON is sanitized by s while it is read, so
// discarded subtrees are never decoded; the bool reports whether that
// rewrote anything. A nil s leaves text as a string.
func textValue(text string, s *sanitizer.Sanitizer) (value.Value, bool) {
	trimmed := strings.TrimSpace(text)
	if s == nil || !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return value.String(text), false
	}
	res, err := s.ProcessJSON([]byte(trimmed))
	if err != nil {
		return value.String(text), false
	}
	return res.Value, res.Verdict == sanitizer.VerdictModify
}

func renderText(v value.Value) (string, error) {
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
