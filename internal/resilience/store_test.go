package resilience

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	st, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Hosts) != 0 {
		t.Errorf("expected empty state, got %d hosts", len(st.Hosts))
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	cfg := DefaultConfig()

	st := NewState()
	st.Host("api.github.com", cfg).Breaker.Failures = 3
	if err := store.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h, ok := loaded.Hosts["api.github.com"]
	if !ok {
		t.Fatal("host entry missing after reload")
	}
	if h.Breaker.Failures != 3 {
		t.Errorf("expected 3 failures, got %d", h.Breaker.Failures)
	}
	if loaded.Version != StateVersion {
		t.Errorf("expected version %d, got %d", StateVersion, loaded.Version)
	}
}

func TestStoreCorruptFileYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := NewStore(dir).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Hosts) != 0 {
		t.Error("expected corrupt file to be ignored")
	}
}

func TestStoreUpdateErrorWritesNothing(t *testing.T) {
	store := NewStore(t.TempDir())
	boom := errors.New("boom")

	err := store.Update(func(s *State) error {
		s.Host("h", DefaultConfig()).Breaker.Failures = 9
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("expected no state file after failed update")
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Save(NewState()); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("expected state file removed")
	}
	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestDefaultDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	if got, want := DefaultDir(), filepath.Join("/tmp/xdg", "pagewise", "resilience"); got != want {
		t.Errorf("DefaultDir() = %q, want %q", got, want)
	}
}
