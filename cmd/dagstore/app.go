package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/dagstore/config"
	"xdao.co/dagstore/filestore"
	"xdao.co/dagstore/internal/logging"
	"xdao.co/dagstore/peer"
	"xdao.co/dagstore/reassembler"
	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/ipfs"
	"xdao.co/dagstore/storage/registry"
)

// errUsage marks argument errors that should exit with status 2.
var errUsage = errors.New("usage")

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func isUsage(err error) bool { return errors.Is(err, errUsage) }

// app holds the process-wide state of one invocation: configuration, the
// logger, the metrics registry and the store handle, opened once and closed
// on exit.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	flags config.Flags
	cfg   config.Config
	log   *zap.Logger
	reg   *prometheus.Registry

	store *storage.Store
	peers []*peer.Client
}

func (a *app) configure(fs *pflag.FlagSet) error {
	path := a.flags.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.flags.Apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		return usagef("%v", err)
	}
	a.cfg = cfg

	a.log, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return usagef("%v", err)
	}
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

// openStore opens the configured backend on first use.
func (a *app) openStore() (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	b, err := registry.Open(a.cfg.Store.Backend, registry.OpenOptions{
		Path:   a.cfg.Store.Path,
		Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	s, err := storage.New(b, storage.Options{
		CacheSize:    a.cfg.Store.CacheSize,
		VerifyOnRead: a.cfg.Store.VerifyOnRead,
		Logger:       a.log,
		Registerer:   a.reg,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	a.store = s
	return s, nil
}

// dialPeers connects to every configured peer on first use.
func (a *app) dialPeers() ([]*peer.Client, error) {
	if a.peers != nil || len(a.cfg.Peers) == 0 {
		return a.peers, nil
	}
	for _, target := range a.cfg.Peers {
		c, err := peer.Dial(strings.TrimSpace(target), peer.DialOptions{
			Timeout:     a.cfg.Peer.DialTimeout,
			MaxMsgBytes: a.cfg.Peer.MaxMsgBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("dial peer %s: %w", target, err)
		}
		c.Timeout = a.cfg.Peer.Timeout
		a.peers = append(a.peers, c)
	}
	return a.peers, nil
}

// nodeStore is the local store, falling back to peers on a miss when any
// are configured.
func (a *app) nodeStore() (storage.NodeStore, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	peers, err := a.dialPeers()
	if err != nil {
		return nil, err
	}
	var fetchers storage.MultiFetcher
	for _, p := range peers {
		fetchers = append(fetchers, p)
	}
	if a.cfg.IPFS.Enabled {
		fetchers = append(fetchers, a.ipfsClient())
	}
	if len(fetchers) == 0 {
		return s, nil
	}
	return &storage.FallbackStore{Local: s, Remote: fetchers, Logger: a.log}, nil
}

func (a *app) ipfsClient() *ipfs.Client {
	var env []string
	if a.cfg.IPFS.RepoPath != "" {
		env = append(os.Environ(), "IPFS_PATH="+a.cfg.IPFS.RepoPath)
	}
	return ipfs.New(ipfs.Options{Bin: a.cfg.IPFS.Bin, Env: env, Logger: a.log})
}

func (a *app) fileStore() (*filestore.FileStore, error) {
	ns, err := a.nodeStore()
	if err != nil {
		return nil, err
	}
	return filestore.New(ns, filestore.Options{
		ChunkSize: a.cfg.ChunkSize,
		Reassembler: reassembler.Options{
			Limits: reassembler.Limits{
				MaxNodes: a.cfg.Traversal.MaxNodes,
				MaxDepth: a.cfg.Traversal.MaxDepth,
			},
			Concurrency: a.cfg.Traversal.Concurrency,
			Metrics:     reassembler.NewMetrics(a.reg),
		},
		Logger: a.log,
	}), nil
}

func (a *app) close() {
	for _, p := range a.peers {
		_ = p.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Error("close store", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
