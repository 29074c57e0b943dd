// Package testkit holds conformance suites shared by node store backends.
package testkit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// NewBackend constructs a fresh, empty backend for a test.
// The returned backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) storage.Backend

// RunBackendConformance checks the storage.Backend contract.
func RunBackendConformance(t *testing.T, newBackend NewBackend) {
	t.Helper()
	ctx := context.Background()

	record := func(t *testing.T, chunk string) (string, []byte) {
		t.Helper()
		n := dag.NewLeaf([]byte(chunk))
		b, err := storage.EncodeRecord(n)
		if err != nil {
			t.Fatalf("EncodeRecord failed: %v", err)
		}
		return n.Key(), b
	}

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		key, want := record(t, "hello, dagstore")

		stored, err := b.PutIfAbsent(ctx, key, want)
		if err != nil {
			t.Fatalf("PutIfAbsent failed: %v", err)
		}
		if !stored {
			t.Fatalf("PutIfAbsent on empty backend reported not stored")
		}
		got, err := b.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIfAbsentKeepsFirstValue", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		key, first := record(t, "same key")

		if _, err := b.PutIfAbsent(ctx, key, first); err != nil {
			t.Fatalf("PutIfAbsent(1) failed: %v", err)
		}
		stored, err := b.PutIfAbsent(ctx, key, []byte("other"))
		if err != nil {
			t.Fatalf("PutIfAbsent(2) failed: %v", err)
		}
		if stored {
			t.Fatalf("PutIfAbsent overwrote an existing key")
		}
		got, err := b.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, first) {
			t.Fatalf("existing value changed")
		}
		n, err := b.Len(ctx)
		if err != nil {
			t.Fatalf("Len failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("Len: got %d want 1", n)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		key, val := record(t, "missing")

		ok, err := b.Has(ctx, key)
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if ok {
			t.Fatalf("Has returned true for missing key")
		}
		_, err = b.Get(ctx, key)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := b.PutIfAbsent(ctx, key, val); err != nil {
			t.Fatalf("PutIfAbsent failed: %v", err)
		}
		ok, err = b.Has(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Has after put: ok=%v err=%v", ok, err)
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()
		sameKey, sameVal := record(t, "contended")

		const writers = 16
		var wrote atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, 2*writers)
		for i := 0; i < writers; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				stored, err := b.PutIfAbsent(ctx, sameKey, sameVal)
				if err != nil {
					errs <- err
					return
				}
				if stored {
					wrote.Add(1)
				}
			}()
			go func(i int) {
				defer wg.Done()
				key, val := record(t, fmt.Sprintf("distinct %d", i))
				if _, err := b.PutIfAbsent(ctx, key, val); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent put failed: %v", err)
		}
		if wrote.Load() != 1 {
			t.Fatalf("same key stored %d times, want 1", wrote.Load())
		}
		n, err := b.Len(ctx)
		if err != nil {
			t.Fatalf("Len failed: %v", err)
		}
		if n != writers+1 {
			t.Fatalf("Len: got %d want %d", n, writers+1)
		}
	})
}
