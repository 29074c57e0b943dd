package memstore

import (
	"testing"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestMemstore_Conformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		t.Helper()
		return New()
	})
}
