package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/varastohq/varasto/types"
)

// Descriptor pairs a plugin manifest with its collector factory.
type Descriptor struct {
	Manifest Manifest
	Factory  Factory
}

// Registry is the process-wide catalog of collector plugins, keyed by
// vendor:provider_type. Lookups read an immutable snapshot; Discover
// and Refresh build a new map and swap it atomically, so readers never
// observe a partially populated registry. Filesystem I/O is confined
// to Discover/Refresh.
type Registry struct {
	pluginsDir string
	logger     zerolog.Logger

	mu       sync.Mutex // serializes discovery; guards builtins/drivers
	builtins []Descriptor
	drivers  map[string]Factory

	snapshot atomic.Pointer[map[string]Descriptor]
}

// NewRegistry creates an empty registry. pluginsDir may be empty when
// only built-in plugins are used.
func NewRegistry(pluginsDir string, logger zerolog.Logger) *Registry {
	r := &Registry{
		pluginsDir: pluginsDir,
		logger:     logger.With().Str("component", "registry").Logger(),
		drivers:    make(map[string]Factory),
	}
	empty := map[string]Descriptor{}
	r.snapshot.Store(&empty)
	return r
}

// RegisterBuiltin adds a compiled-in plugin. Takes effect on the next
// Discover or Refresh.
func (r *Registry) RegisterBuiltin(d Descriptor) error {
	if err := d.Manifest.validate(); err != nil {
		return err
	}
	if d.Factory == nil {
		return fmt.Errorf("builtin %s has no factory", d.Manifest.Key())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins = append(r.builtins, d)
	return nil
}

// RegisterDriver names a collector family that external manifest.yml
// files can bind to via their driver field.
func (r *Registry) RegisterDriver(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = f
}

// Discover scans built-ins and the plugins directory and swaps in the
// resulting snapshot. Idempotent; Refresh is Discover with intent.
func (r *Registry) Discover(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Descriptor, len(r.builtins))
	for _, d := range r.builtins {
		key := d.Manifest.Key()
		if prev, dup := next[key]; dup {
			r.logger.Warn().Str("plugin", key).Str("replaced", prev.Manifest.DisplayName).
				Msg("duplicate builtin plugin, last registration wins")
		}
		next[key] = d
	}

	if r.pluginsDir != "" {
		if err := r.scanPluginsDir(ctx, next); err != nil {
			return err
		}
	}

	r.snapshot.Store(&next)
	r.logger.Info().Int("plugins", len(next)).Msg("plugin discovery complete")
	return nil
}

// Refresh clears and re-runs discovery. In-flight lookups keep reading
// the old snapshot until the swap.
func (r *Registry) Refresh(ctx context.Context) error {
	return r.Discover(ctx)
}

// scanPluginsDir loads every <dir>/manifest.yml under the plugins
// directory. Caller holds r.mu.
func (r *Registry) scanPluginsDir(ctx context.Context, into map[string]Descriptor) error {
	entries, err := os.ReadDir(r.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read plugins dir: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(r.pluginsDir, e.Name(), "manifest.yml")
		if _, err := os.Stat(path); err != nil {
			continue
		}

		m, err := loadManifestFile(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("dir", e.Name()).Msg("skipping plugin with bad manifest")
			continue
		}
		factory, ok := r.drivers[m.Driver]
		if !ok {
			r.logger.Warn().Str("plugin", m.Key()).Str("driver", m.Driver).
				Msg("skipping plugin with unknown driver")
			continue
		}
		into[m.Key()] = Descriptor{Manifest: m, Factory: factory}
		r.logger.Info().Str("plugin", m.Key()).Str("driver", m.Driver).Msg("registered external plugin")
	}
	return nil
}

// Lookup returns the descriptor for vendor:provider_type.
func (r *Registry) Lookup(vendor, providerType string) (Descriptor, error) {
	snap := *r.snapshot.Load()
	d, ok := snap[vendor+":"+providerType]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w for %s:%s", types.ErrNoPlugin, vendor, providerType)
	}
	return d, nil
}

// List returns all discovered manifests sorted by key.
func (r *Registry) List() []Manifest {
	snap := *r.snapshot.Load()
	out := make([]Manifest, 0, len(snap))
	for _, d := range snap {
		out = append(out, d.Manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Instantiate builds a fresh collector for one provider. Collectors
// are single-run; never reuse one across runs.
func (r *Registry) Instantiate(p types.Provider) (Collector, error) {
	d, err := r.Lookup(p.Vendor, p.ProviderType)
	if err != nil {
		return nil, err
	}
	return d.Factory(p, ResolveCredential(p))
}

// TestConnection instantiates the provider's collector and runs its
// connectivity check without collecting.
func (r *Registry) TestConnection(ctx context.Context, p types.Provider) error {
	c, err := r.Instantiate(p)
	if err != nil {
		return err
	}
	return c.CheckConnection(ctx)
}
