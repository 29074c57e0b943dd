package config

import (
	"github.com/spf13/pflag"
)

// Flags are the command-line overrides for Config.
type Flags struct {
	ConfigPath string

	backend       string
	path          string
	cacheSize     int
	verifyOnRead  bool
	chunkSize     int
	peers         []string
	maxNodes      int
	maxDepth      int
	ipfs          bool
	listen        string
	metricsListen string
	logLevel      string
	logFormat     string
}

// Register defines the flags on fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	d := Default()
	fs.StringVar(&f.ConfigPath, "config", "", "YAML config file (default $"+EnvConfig+")")
	fs.StringVar(&f.backend, "backend", d.Store.Backend, "store backend name")
	fs.StringVar(&f.path, "store-path", d.Store.Path, "store directory")
	fs.IntVar(&f.cacheSize, "cache-size", d.Store.CacheSize, "decoded-node cache entries (0 default, negative off)")
	fs.BoolVar(&f.verifyOnRead, "verify-on-read", d.Store.VerifyOnRead, "recompute CIDs of nodes read from the backend")
	fs.IntVar(&f.chunkSize, "chunk-size", d.ChunkSize, "chunk size in bytes")
	fs.StringSliceVar(&f.peers, "peer", nil, "peer gRPC address to fetch missing nodes from (repeatable)")
	fs.IntVar(&f.maxNodes, "max-nodes", d.Traversal.MaxNodes, "maximum nodes visited per reassembly")
	fs.IntVar(&f.maxDepth, "max-depth", d.Traversal.MaxDepth, "maximum DAG depth per reassembly")
	fs.BoolVar(&f.ipfs, "ipfs", d.IPFS.Enabled, "fetch missing nodes from the local IPFS repo")
	fs.StringVar(&f.listen, "listen", d.Listen, "gRPC listen address for serve")
	fs.StringVar(&f.metricsListen, "metrics-listen", d.MetricsListen, "HTTP address for /metrics (empty disables)")
	fs.StringVar(&f.logLevel, "log-level", d.Log.Level, "log level (debug, info, warn, error, none)")
	fs.StringVar(&f.logFormat, "log-format", d.Log.Format, "log format (console, json)")
}

// Apply copies every flag set on the command line into cfg.
func (f *Flags) Apply(fs *pflag.FlagSet, cfg *Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("backend", func() { cfg.Store.Backend = f.backend })
	set("store-path", func() { cfg.Store.Path = f.path })
	set("cache-size", func() { cfg.Store.CacheSize = f.cacheSize })
	set("verify-on-read", func() { cfg.Store.VerifyOnRead = f.verifyOnRead })
	set("chunk-size", func() { cfg.ChunkSize = f.chunkSize })
	set("peer", func() { cfg.Peers = append([]string(nil), f.peers...) })
	set("max-nodes", func() { cfg.Traversal.MaxNodes = f.maxNodes })
	set("max-depth", func() { cfg.Traversal.MaxDepth = f.maxDepth })
	set("ipfs", func() { cfg.IPFS.Enabled = f.ipfs })
	set("listen", func() { cfg.Listen = f.listen })
	set("metrics-listen", func() { cfg.MetricsListen = f.metricsListen })
	set("log-level", func() { cfg.Log.Level = f.logLevel })
	set("log-format", func() { cfg.Log.Format = f.logFormat })
}
