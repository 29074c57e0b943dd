// Package config loads dagstore configuration.
//
// Configuration comes from an optional YAML file; command-line flags then
// override individual values. Anything left unset keeps its default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/dagstore/chunker"
	"xdao.co/dagstore/storage/registry"
)

// EnvConfig names the environment variable consulted when no --config flag
// is given.
const EnvConfig = "DAGSTORE_CONFIG"

// Config is the full configuration of a dagstore process.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	ChunkSize int             `yaml:"chunk_size"`
	Peers     []string        `yaml:"peers"`
	Peer      PeerConfig      `yaml:"peer"`
	Traversal TraversalConfig `yaml:"traversal"`
	IPFS      IPFSConfig      `yaml:"ipfs"`

	// Listen is the gRPC address of `dagstore serve`.
	Listen string `yaml:"listen"`
	// MetricsListen serves /metrics when non-empty.
	MetricsListen string `yaml:"metrics_listen"`

	Log LogConfig `yaml:"log"`
}

// StoreConfig selects and tunes the node store backend.
type StoreConfig struct {
	// Backend is a registered backend name (memory, localfs, badger).
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// CacheSize bounds the decoded-node cache; negative disables it.
	CacheSize    int  `yaml:"cache_size"`
	VerifyOnRead bool `yaml:"verify_on_read"`
}

// PeerConfig tunes connections to peers.
type PeerConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxMsgBytes int           `yaml:"max_msg_bytes"`
}

// TraversalConfig bounds reassembly.
type TraversalConfig struct {
	MaxNodes    int `yaml:"max_nodes"`
	MaxDepth    int `yaml:"max_depth"`
	Concurrency int `yaml:"concurrency"`
}

// IPFSConfig enables the local Kubo repository as a source of missing
// nodes.
type IPFSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bin     string `yaml:"bin"`
	// RepoPath sets IPFS_PATH for the ipfs binary when non-empty.
	RepoPath string `yaml:"repo_path"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: "badger",
			Path:    defaultStorePath(),
		},
		ChunkSize: chunker.DefaultChunkSize,
		Peer: PeerConfig{
			Timeout:     30 * time.Second,
			DialTimeout: 5 * time.Second,
			MaxMsgBytes: 128 << 20,
		},
		Traversal: TraversalConfig{
			MaxNodes:    1 << 22,
			MaxDepth:    64,
			Concurrency: 8,
		},
		Listen: "127.0.0.1:7777",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserHomeDir(); err == nil && dir != "" {
		return dir + "/.dagstore/store"
	}
	return ".dagstore/store"
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := Parse(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys not present in b leave cfg unchanged;
// unknown keys are an error.
func Parse(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Store.Backend == "":
		return errors.New("config: store.backend is required")
	case !registry.Known(c.Store.Backend):
		return fmt.Errorf("config: unknown store.backend %q (known: %v)", c.Store.Backend, registry.Names())
	case c.Store.Backend != "memory" && c.Store.Path == "":
		return fmt.Errorf("config: store.path is required for backend %q", c.Store.Backend)
	case c.ChunkSize <= 0:
		return errors.New("config: chunk_size must be positive")
	case c.Traversal.MaxNodes <= 0:
		return errors.New("config: traversal.max_nodes must be positive")
	case c.Traversal.MaxDepth <= 0:
		return errors.New("config: traversal.max_depth must be positive")
	case c.Traversal.Concurrency <= 0:
		return errors.New("config: traversal.concurrency must be positive")
	case c.Peer.Timeout < 0 || c.Peer.DialTimeout < 0:
		return errors.New("config: peer timeouts must not be negative")
	}
	for i, p := range c.Peers {
		if p == "" {
			return fmt.Errorf("config: peers[%d] is empty", i)
		}
	}
	return nil
}
