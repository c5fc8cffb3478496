package hashcache

import (
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "hashes.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpsertAndHash(t *testing.T) {
	c := openTemp(t)

	if _, ok, err := c.Hash("a.py"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := c.Upsert("a.py", "h1"); err != nil {
		t.Fatal(err)
	}
	if hash, ok, _ := c.Hash("a.py"); !ok || hash != "h1" {
		t.Fatalf("got %q ok=%v, want h1", hash, ok)
	}

	// Upsert replaces.
	if err := c.Upsert("a.py", "h2"); err != nil {
		t.Fatal(err)
	}
	if hash, _, _ := c.Hash("a.py"); hash != "h2" {
		t.Fatalf("got %q, want h2", hash)
	}
}

func TestUpsertBatchAndAll(t *testing.T) {
	c := openTemp(t)
	in := map[string]string{"a.py": "h1", "b.py": "h2", "c.pyi": "h3"}
	if err := c.UpsertBatch(in); err != nil {
		t.Fatal(err)
	}
	all, err := c.All()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, in) {
		t.Fatalf("got %v, want %v", all, in)
	}
}

func TestChanged(t *testing.T) {
	c := openTemp(t)
	if err := c.UpsertBatch(map[string]string{"same.py": "s", "old.py": "before"}); err != nil {
		t.Fatal(err)
	}

	changed, err := c.Changed(map[string]string{
		"same.py": "s",      // unchanged
		"old.py":  "after",  // differs
		"new.py":  "n",      // missing from the stored set
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(changed)
	want := []string{"new.py", "old.py"}
	if !reflect.DeepEqual(changed, want) {
		t.Fatalf("got %v, want %v", changed, want)
	}
}

func TestPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert("a.py", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if hash, ok, _ := c.Hash("a.py"); !ok || hash != "h1" {
		t.Fatalf("got %q ok=%v after reopen, want h1", hash, ok)
	}
}
