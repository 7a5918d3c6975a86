package testsupport

import (
	"context"
	"testing"

	"podship/internal/config"
	"podship/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewEpisode creates a new episode for tests using the provided store.
func NewEpisode(t testing.TB, st *store.Store, channelID int64, externalID, title string) *store.Episode {
	t.Helper()

	ep, err := st.CreateEpisode(context.Background(), channelID, externalID, title, "https://example.invalid/"+externalID, 120, 2)
	if err != nil {
		t.Fatalf("store.CreateEpisode: %v", err)
	}
	return ep
}
