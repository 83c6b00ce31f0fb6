// Package config centralizes worker creation parameters: thread mode, CPU
// mask, atomic-operation placement mode, the transport allow-list read
// once from the environment, the endpoint-configuration table bound, and
// request-pool sizing.
package config

import (
	"os"
	"strings"

	"github.com/coriolis-systems/workercore/api"
)

// transportListEnv names the environment variable holding a
// comma-separated allow-list of transport names to enable; empty or unset
// means every transport the registry discovers is allowed.
const transportListEnv = "WORKER_TLS"

// Config centralizes the knobs worker creation consumes.
type Config struct {
	Params api.Params

	// TransportAllowList filters which transport names the capability
	// registry will enumerate. Empty means allow every transport.
	TransportAllowList []string

	// EPConfigLimit bounds the endpoint-configuration cache; zero falls
	// back to Params.EPConfigLimit, and then to the size formula in
	// internal/epconfig.
	EPConfigLimit int

	// RequestHeaderSize is the fixed header region of every request-pool
	// element; RequestTrailerSize is appended per Params.
	RequestHeaderSize int
}

// DefaultConfig returns the documented defaults: thread-mode single, empty
// CPU mask, guess atomic mode, every transport allowed.
func DefaultConfig() Config {
	return Config{
		Params:            api.DefaultParams(),
		RequestHeaderSize: 64,
	}
}

// FromEnvironment layers the process environment onto base, reading
// WORKER_TLS once. Subsequent changes to the environment have no effect —
// a worker's transport allow-list is fixed at Create.
func FromEnvironment(base Config) Config {
	if v, ok := os.LookupEnv(transportListEnv); ok {
		base.TransportAllowList = parseTransportList(v)
	}
	return base
}

func parseTransportList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
