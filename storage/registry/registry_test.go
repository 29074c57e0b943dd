package registry

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagstore/storage"
)

type nopBackend struct{}

func (nopBackend) Get(context.Context, string) ([]byte, error) { return nil, storage.ErrNotFound }
func (nopBackend) Has(context.Context, string) (bool, error)   { return false, nil }
func (nopBackend) PutIfAbsent(context.Context, string, []byte) (bool, error) {
	return true, nil
}
func (nopBackend) Len(context.Context) (int, error) { return 0, nil }
func (nopBackend) Close() error                     { return nil }

func TestRegisterAndOpen(t *testing.T) {
	var flagValue string
	require.NoError(t, Register(Backend{
		Name: "test-nop",
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagValue, "test-nop-opt", "", "test option")
		},
		Open: func(OpenOptions) (storage.Backend, error) { return nopBackend{}, nil },
	}))

	assert.True(t, Known("test-nop"))
	assert.Contains(t, Names(), "test-nop")

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--test-nop-opt=x"}))
	assert.Equal(t, "x", flagValue)

	b, err := Open("test-nop", OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestRegister_Rejects(t *testing.T) {
	assert.Error(t, Register(Backend{}))
	assert.Error(t, Register(Backend{Name: "no-open"}))

	b := Backend{Name: "test-dup", Open: func(OpenOptions) (storage.Backend, error) { return nopBackend{}, nil }}
	require.NoError(t, Register(b))
	assert.Error(t, Register(b))
	assert.Panics(t, func() { MustRegister(b) })

	_, err := Open("does-not-exist", OpenOptions{})
	assert.Error(t, err)
}
