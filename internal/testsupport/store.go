package testsupport

import (
	"testing"

	"cleave/internal/cachestore"
	"cleave/internal/config"
	"cleave/internal/logging"
)

// MustOpenStore opens a cachestore.Store under the config's output directory
// for tests, creating the output layout first.
func MustOpenStore(t testing.TB, cfg *config.Config) *cachestore.Store {
	t.Helper()

	if err := cfg.EnsureOutputLayout(); err != nil {
		t.Fatalf("ensure output layout: %v", err)
	}
	store, err := cachestore.Open(cfg.OutputDir, logging.NewNop())
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}
	return store
}
