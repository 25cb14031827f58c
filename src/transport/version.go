package transport

// Version is the current build version, injected at build time via ldflags:
//
//	-X github.com/Easy-Infra-Ltd/easy-safe-mode/src/transport.Version=<tag>
//
// Defaults to "dev" when built without ldflags (local development).
var Version = "dev"

// ImplementationName identifies the gateway to MCP peers on both sides.
const ImplementationName = "easy-safe-mode"

// Instructions returns the server instructions advertised to clients.
func Instructions(safeMode bool) string {
	const base = "Tools are proxied from downstream servers as <server>__<tool>."
	if !safeMode {
		return base
	}
	return base + " Safe mode is on: arrays in results are replaced by {\"_array_length\": N}, " +
		"non-finite numbers by 0, numbers above the configured maximum are clamped " +
		"and long strings are truncated."
}
