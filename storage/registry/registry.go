// Package registry lets node store backends register themselves at build time.
//
// Backends register in init():
//
//	registry.MustRegister(registry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/dagstore/storage"
)

// OpenOptions carries the settings shared by every backend.
type OpenOptions struct {
	// Path is the data directory. Backends that keep no files ignore it.
	Path   string
	Logger *zap.Logger
}

// Backend is a build-time plugin that can open a storage.Backend.
type Backend struct {
	Name        string
	Description string

	// RegisterFlags adds backend-specific flags to fs. Optional.
	RegisterFlags func(fs *pflag.FlagSet)

	// Open constructs the backend using opts and any values parsed into
	// flags registered by RegisterFlags.
	Open func(opts OpenOptions) (storage.Backend, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns registered backends sorted by name.
func List() []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered backend names, sorted.
func Names() []string {
	bs := List()
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Known reports whether name is registered.
func Known(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := backends[name]
	return ok
}

// RegisterFlags registers flags for all backends.
//
// This enables single-pass flag parsing across backends.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, b := range List() {
		if b.RegisterFlags != nil {
			b.RegisterFlags(fs)
		}
	}
}

// Open opens the named backend.
func Open(name string, opts OpenOptions) (storage.Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown backend %q", name)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return b.Open(opts)
}
