// dag_cid prints the root CID a file would be stored under, without
// storing anything.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"xdao.co/dagstore/chunker"
	"xdao.co/dagstore/dag"
)

func main() {
	fs := flag.NewFlagSet("dag_cid", flag.ExitOnError)
	ext := fs.String("ext", "", "extension stored on the root (default: from the file name)")
	size := fs.Int("chunk-size", chunker.DefaultChunkSize, "chunk size in bytes")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dag_cid [--ext e] [--chunk-size n] <file>")
		os.Exit(2)
	}
	path := fs.Arg(0)
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
	if *ext == "" {
		*ext = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	chunks, err := chunker.Chunk(b, *size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chunk: %v\n", err)
		os.Exit(2)
	}
	ctx := context.Background()
	leaves, err := dag.Leaves(ctx, chunks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}
	tree, err := dag.Build(ctx, leaves, *ext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(tree.Root().Key())
}
