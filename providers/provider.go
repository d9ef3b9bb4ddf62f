// Package providers defines the collector plugin contract and the
// process-wide plugin registry. Collectors talk to remote backends and
// stream discovered assets; they never touch the catalog.
package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/varastohq/varasto/types"
)

// Collector is the capability contract every plugin must satisfy.
// One instance serves one collection run: Collect returns a finite,
// single-pass stream, so the orchestrator instantiates a fresh
// collector per run.
type Collector interface {
	// Manifest describes the plugin (vendor, type, supported types).
	Manifest() Manifest

	// CheckConnection verifies connectivity and credentials without
	// performing a full collection.
	CheckConnection(ctx context.Context) error

	// Collect streams every discovered asset, optionally limited to
	// the scope's resource types. The returned stream is lazy and not
	// restartable; its Err reports the terminal status once drained.
	Collect(ctx context.Context, scope Scope) (*AssetStream, error)

	// Topology returns relationship edges between the assets this
	// collector reported, expressed in native references.
	Topology(ctx context.Context) ([]types.AssetEdge, error)
}

// Scope limits a collection to specific canonical resource types.
// Empty means everything the collector supports.
type Scope struct {
	ResourceTypes []string
}

// Includes reports whether the scope covers a type slug.
func (s Scope) Includes(slug string) bool {
	if len(s.ResourceTypes) == 0 {
		return true
	}
	for _, t := range s.ResourceTypes {
		if t == slug {
			return true
		}
	}
	return false
}

// Factory builds a collector for one provider's configuration.
type Factory func(provider types.Provider, cred Credential) (Collector, error)

// Credential is the resolved connection material handed to a
// collector. Resolution from credential_ref happens once in the
// framework layer; plugins never see where secrets come from.
type Credential struct {
	Hostname string
	Port     int
	Username string
	Password string
	Extra    map[string]string
}

// ResolveCredential builds a credential from a provider's endpoint and
// connection config. In production the password side would come from
// an external secret store via CredentialRef.
func ResolveCredential(p types.Provider) Credential {
	cfg := p.ConnectionConfig

	host := p.Endpoint
	port := 443
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if n, err := strconv.Atoi(host[i+1:]); err == nil {
			port = n
			host = host[:i]
		}
	}

	cred := Credential{
		Hostname: host,
		Port:     port,
		Username: cfg["username"],
		Password: cfg["password"],
		Extra:    make(map[string]string, len(cfg)),
	}
	if v, ok := cfg["port"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cred.Port = n
		}
	}
	for k, v := range cfg {
		switch k {
		case "username", "password", "port":
		default:
			cred.Extra[k] = v
		}
	}
	return cred
}
