package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/gigsync/gigsync/pkg/store"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "a/1", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "a/1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Get missing key: err = %v, want ErrKeyNotFound", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}

	_ = s.Put(ctx, "k", []byte("v"))
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrKeyNotFound", err)
	}
}

func TestListKeysSortedByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, k := range []string{"cache/b", "cache/a", "queue/1"} {
		_ = s.Put(ctx, k, []byte("x"))
	}

	keys, err := s.ListKeys(ctx, "cache/")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"cache/a", "cache/b"}
	if len(keys) != len(want) {
		t.Fatalf("ListKeys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("ListKeys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Get on closed store: err = %v, want ErrStoreClosed", err)
	}
	if err := s.Put(context.Background(), "k", nil); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Put on closed store: err = %v, want ErrStoreClosed", err)
	}
}

func TestNamespacedIsolation(t *testing.T) {
	backing := New()
	ctx := context.Background()

	cacheNS := store.NewNamespaced(backing, "cache")
	queueNS := store.NewNamespaced(backing, "queue")

	_ = cacheNS.Put(ctx, "id1", []byte("bytes"))
	_ = queueNS.Put(ctx, "id1", []byte("mutation"))

	got, err := cacheNS.Get(ctx, "id1")
	if err != nil {
		t.Fatalf("Get via namespace: %v", err)
	}
	if string(got) != "bytes" {
		t.Errorf("cache namespace returned %q, want %q", got, "bytes")
	}

	keys, _ := cacheNS.ListKeys(ctx, "")
	if len(keys) != 1 || keys[0] != "id1" {
		t.Errorf("namespaced ListKeys = %v, want [id1]", keys)
	}
}
