package cache

import (
	"testing"
	"time"
)

type summary struct {
	Particles int
	Final     [2]float64
	Algorithm string
}

func TestTypedRoundTrip(t *testing.T) {
	for name, c := range map[string]Cache{
		"mock": NewMockCache(),
		"lru":  newTestLRU(t, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			tc := NewTyped[summary](c, "test")
			want := summary{Particles: 10, Final: [2]float64{1.5, -2.25}, Algorithm: "barnes-hut"}
			if err := tc.Set("k", want, 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, ok := tc.Get("k")
			if !ok {
				t.Fatal("expected hit")
			}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestTypedMiss(t *testing.T) {
	tc := NewTyped[summary](NewMockCache(), "test")
	if _, ok := tc.Get("nope"); ok {
		t.Error("expected miss")
	}
}

func TestTypedDropsUndecodable(t *testing.T) {
	m := NewMockCache()
	m.Set("bad", []byte{0xc1}, 0) // never-used msgpack code
	tc := NewTyped[summary](m, "test")

	if _, ok := tc.Get("bad"); ok {
		t.Fatal("expected miss for undecodable entry")
	}
	if _, found := m.Get("bad"); found {
		t.Error("undecodable entry should be deleted")
	}
}

func TestMockCacheStats(t *testing.T) {
	m := NewMockCache()
	m.Set("a", []byte("1"), 0)
	m.Get("a")
	m.Get("b")
	s := m.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Items != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}
