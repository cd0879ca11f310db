package registry

import "testing"

type fakeEntry struct {
	name     string
	destroys *int
}

func (f *fakeEntry) Destroy() {
	if f.destroys != nil {
		*f.destroys++
	}
}

func TestPutGetDelete(t *testing.T) {
	r := New[*fakeEntry]()
	e := &fakeEntry{name: "a"}
	r.Put("a", e)

	got, ok := r.Get("a")
	if !ok || got != e {
		t.Fatal("expected to retrieve the stored entry")
	}
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}

	r.Delete("a")
	if _, ok := r.Get("a"); ok {
		t.Fatal("expected entry to be gone after Delete")
	}
	if r.Len() != 0 {
		t.Fatalf("expected len 0, got %d", r.Len())
	}
}

func TestDeleteInvokesDestroy(t *testing.T) {
	r := New[*fakeEntry]()
	n := 0
	r.Put("a", &fakeEntry{destroys: &n})
	r.Delete("a")
	if n != 1 {
		t.Fatalf("expected Destroy called once, got %d", n)
	}

	// Deleting an absent key is a no-op, not an extra Destroy call.
	r.Delete("a")
	if n != 1 {
		t.Fatalf("expected Destroy still called once, got %d", n)
	}
}

func TestPutDisplacesAndDestroysPriorValue(t *testing.T) {
	r := New[*fakeEntry]()
	n := 0
	first := &fakeEntry{name: "first", destroys: &n}
	second := &fakeEntry{name: "second", destroys: &n}

	r.Put("client-1", first)
	r.Put("client-1", second)

	if n != 1 {
		t.Fatalf("expected the displaced entry to be destroyed once, got %d", n)
	}
	got, _ := r.Get("client-1")
	if got != second {
		t.Fatal("expected the second Put to win")
	}
}

func TestEachVisitsAllEntries(t *testing.T) {
	r := New[*fakeEntry]()
	r.Put("a", &fakeEntry{name: "a"})
	r.Put("b", &fakeEntry{name: "b"})

	seen := map[string]bool{}
	r.Each(func(key string, v *fakeEntry) { seen[key] = true })

	if len(seen) != 2 || !seen["a"] || !seen["b"] {
		t.Fatalf("expected both entries visited, got %v", seen)
	}
}
