package namespace

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestResolveCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	p, err := r.Resolve(Key{TenantID: 1, ConversationID: 2}, ResourceCurrent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := filepath.Join(root, "1", "2", "current.txt")
	if p != want {
		t.Errorf("path = %q, want %q", p, want)
	}

	info, err := os.Stat(filepath.Dir(p))
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected conversation directory to exist")
	}

	// The resource file itself is not created.
	if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("resource file should not exist yet, stat err = %v", err)
	}
}

func TestResolveUnknownResource(t *testing.T) {
	r := NewResolver(t.TempDir())
	_, err := r.Resolve(Key{TenantID: 1, ConversationID: 1}, Resource("secrets"))
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("err = %v, want ErrUnknownResource", err)
	}
}

func TestResolveIsInjective(t *testing.T) {
	r := NewResolver(t.TempDir())

	keys := []Key{
		{TenantID: 1, ConversationID: 23},
		{TenantID: 12, ConversationID: 3},
		{TenantID: 123, ConversationID: 0},
		{TenantID: -1, ConversationID: 23},
		{TenantID: 1, ConversationID: -23},
	}

	seen := make(map[string]Key)
	for _, k := range keys {
		for _, res := range []Resource{ResourceCurrent, ResourceArchive, ResourceSystem} {
			p, err := r.Path(k, res)
			if err != nil {
				t.Fatalf("Path(%v, %s): %v", k, res, err)
			}
			if other, ok := seen[p]; ok {
				t.Fatalf("keys %v and %v both map to %q", other, k, p)
			}
			seen[p] = k
		}
	}
}

func TestResolveConcurrent(t *testing.T) {
	r := NewResolver(t.TempDir())
	key := Key{TenantID: 9, ConversationID: 9}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(key, ResourceArchive); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Resolve: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	want := []Key{
		{TenantID: 1, ConversationID: 5},
		{TenantID: 1, ConversationID: 10},
		{TenantID: 2, ConversationID: 1},
	}
	for i := len(want) - 1; i >= 0; i-- {
		if _, err := r.Resolve(want[i], ResourceCurrent); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	// Noise that must be ignored.
	for _, p := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "1", "notes"),
		filepath.Join(root, "1", "007"),
	} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := r.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Discover returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "absent"))
	keys, err := r.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestKeyString(t *testing.T) {
	k := Key{TenantID: 42, ConversationID: -7}
	if got := k.String(); got != "42/-7" {
		t.Errorf("String() = %q, want %q", got, "42/-7")
	}
}
