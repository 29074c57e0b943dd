// Command dagstore stores files as content-addressed Merkle DAGs and serves
// them to peers.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage/registry"

	_ "xdao.co/dagstore/storage/badgerstore"
	_ "xdao.co/dagstore/storage/localfs"
	_ "xdao.co/dagstore/storage/memstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	a := &app{in: in, out: out, errOut: errOut}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if dag.IsKind(err, dag.KindInput) || isUsage(err) {
		return 2
	}
	return 1
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dagstore",
		Short:         "Content-addressed Merkle DAG file store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd.Flags())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usagef("%v", err) })
	a.flags.Register(root.PersistentFlags())
	registry.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newStatCmd(a),
		newServeCmd(a),
		newPullCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newIPFSPublishCmd(a),
		newBackendsCmd(a),
	)
	return root
}
