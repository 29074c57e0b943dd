package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/peer"
	"xdao.co/dagstore/reassembler"
	"xdao.co/dagstore/sniff"
	"xdao.co/dagstore/storage/bundle"
	"xdao.co/dagstore/storage/registry"
)

// fallbackExt tags files whose extension can be neither read from the name
// nor sniffed.
const fallbackExt = "bin"

func newPutCmd(a *app) *cobra.Command {
	var ext string
	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a file and print its root CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, name, err := readInput(a.in, args[0])
			if err != nil {
				return err
			}
			if ext == "" {
				ext = guessExt(name, data)
			}
			fs, err := a.fileStore()
			if err != nil {
				return err
			}
			root, err := fs.StoreFile(cmd.Context(), data, ext)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, root.String())
			return err
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "", "extension stored on the root (default: from the file name or content)")
	return cmd
}

func readInput(in io.Reader, arg string) ([]byte, string, error) {
	if arg == "-" {
		b, err := io.ReadAll(in)
		return b, "", err
	}
	b, err := os.ReadFile(arg)
	return b, arg, err
}

func guessExt(name string, data []byte) string {
	if e := strings.TrimPrefix(filepath.Ext(name), "."); e != "" {
		return e
	}
	if e := sniff.Extension(data); e != "" {
		return e
	}
	return fallbackExt
}

func newGetCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Reassemble a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.fileStore()
			if err != nil {
				return err
			}
			f, err := fs.RetrieveFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.log.Info("retrieved",
				zap.String("root", args[0]),
				zap.String("ext", f.Extension),
				zap.String("mime", f.MIME),
				zap.Int("bytes", len(f.Data)),
			)
			if outPath == "" || outPath == "-" {
				_, err = io.Copy(a.out, bytes.NewReader(f.Data))
				return err
			}
			return os.WriteFile(outPath, f.Data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <cid>",
		Short: "Describe a stored DAG without reading its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := a.fileStore()
			if err != nil {
				return err
			}
			st, err := fs.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "root\t%s\next\t%s\nsize\t%d\nleaves\t%d\ninternal\t%d\ndepth\t%d\n",
				st.Root, st.Extension, st.Size, st.Leaves, st.Internal, st.Depth)
			return err
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <cid>",
		Short: "Copy a whole DAG from the first configured peer that has it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			peers, err := a.dialPeers()
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				return usagef("pull needs at least one --peer")
			}
			var lastErr error
			for i, p := range peers {
				n, err := peer.Pull(cmd.Context(), p, args[0], s, a.log)
				if err == nil {
					_, err = fmt.Fprintf(a.out, "%s\t%d nodes\n", args[0], n)
					return err
				}
				a.log.Warn("pull failed", zap.String("peer", a.cfg.Peers[i]), zap.Error(err))
				lastErr = err
			}
			return lastErr
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		outPath string
		index   bool
	)
	cmd := &cobra.Command{
		Use:   "export <cid>...",
		Short: "Write the DAGs under the given roots to a TAR bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]cid.Cid, len(args))
			for i, s := range args {
				id, err := cidutil.Parse(s)
				if err != nil {
					return usagef("invalid cid %q: %v", s, err)
				}
				roots[i] = id
			}
			ns, err := a.nodeStore()
			if err != nil {
				return err
			}
			opts := bundle.ExportOptions{IncludeIndex: index}
			if outPath == "" || outPath == "-" {
				return bundle.Export(cmd.Context(), a.out, ns, roots, opts)
			}
			return createFile(outPath, func(w io.Writer) error {
				return bundle.Export(cmd.Context(), w, ns, roots, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "bundle file (default stdout)")
	cmd.Flags().BoolVar(&index, "index", true, "include index.json")
	return cmd
}

// createFile writes path through write. The file is removed when write or
// Close fails, so no truncated output is left behind.
func createFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return write(f)
}

func newImportCmd(a *app) *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import <bundle.tar|->",
		Short: "Verify and store every node of a TAR bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			var r io.Reader = a.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			res, err := bundle.ImportWithOptions(cmd.Context(), r, s, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			for _, root := range res.Roots {
				if _, err := fmt.Fprintln(a.out, root); err != nil {
					return err
				}
			}
			a.log.Info("imported bundle", zap.Int("nodes", res.Nodes), zap.Int("roots", len(res.Roots)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip entries that are not nodes")
	return cmd
}

func newIPFSPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ipfs-publish <cid>",
		Short: "Copy a stored DAG into the local IPFS repo as raw blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			r := reassembler.New(s, reassembler.Options{
				Limits: reassembler.Limits{
					MaxNodes: a.cfg.Traversal.MaxNodes,
					MaxDepth: a.cfg.Traversal.MaxDepth,
				},
				Logger: a.log,
			})
			var nodes []dag.Node
			root, err := r.Walk(cmd.Context(), args[0], func(n dag.Node, _ int) error {
				nodes = append(nodes, n)
				return nil
			})
			if err != nil {
				return err
			}
			nodes = append(nodes, root)
			if err := a.ipfsClient().Publish(cmd.Context(), nodes); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "%s\t%d blocks\n", root.Key(), len(nodes))
			return err
		},
	}
}

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the compiled-in store backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range registry.List() {
				if b.Description == "" {
					if _, err := fmt.Fprintln(a.out, b.Name); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintf(a.out, "%s\t%s\n", b.Name, b.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
