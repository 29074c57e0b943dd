package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "xdao.co/dagstore/storage/memstore"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dagstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: memory
  cache_size: -1
chunk_size: 1024
peers: ["10.0.0.1:7777", "10.0.0.2:7777"]
peer:
  timeout: 3s
traversal:
  max_depth: 16
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, -1, cfg.Store.CacheSize)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, []string{"10.0.0.1:7777", "10.0.0.2:7777"}, cfg.Peers)
	assert.Equal(t, 3*time.Second, cfg.Peer.Timeout)
	assert.Equal(t, 16, cfg.Traversal.MaxDepth)
	assert.Equal(t, Default().Traversal.MaxNodes, cfg.Traversal.MaxNodes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_UnknownKey(t *testing.T) {
	var cfg Config
	assert.Error(t, Parse([]byte("chunk_sise: 10\n"), &cfg))
	assert.NoError(t, Parse(nil, &cfg))
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Store.Backend = "memory"
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "floppy" }},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }},
		{"zero nodes", func(c *Config) { c.Traversal.MaxNodes = 0 }},
		{"zero depth", func(c *Config) { c.Traversal.MaxDepth = 0 }},
		{"empty peer", func(c *Config) { c.Peers = []string{""} }},
		{"negative timeout", func(c *Config) { c.Peer.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFlags_OverrideOnlyWhenSet(t *testing.T) {
	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Register(fs)
	require.NoError(t, fs.Parse([]string{"--backend=memory", "--peer=a:1", "--peer=b:2", "--chunk-size=4096"}))

	cfg := Default()
	cfg.Log.Level = "warn"
	f.Apply(fs, &cfg)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Peers)
	assert.Equal(t, 4096, cfg.ChunkSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}
