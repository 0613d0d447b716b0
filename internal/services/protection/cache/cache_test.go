package cache

import (
	"testing"

	"github.com/louisbranch/wardstone/internal/services/protection/domain"
)

func protectionAt(id int64, x int) *domain.Protection {
	return &domain.Protection{ID: id, Location: domain.Location{World: "w", X: x}}
}

func TestPutIndexesSameInstance(t *testing.T) {
	t.Parallel()

	c := New(4)
	p := protectionAt(1, 5)
	c.Put(p)

	byID, ok := c.Get(1)
	if !ok {
		t.Fatal("expected id hit")
	}
	byKey, ok := c.GetAt("w:5:0:0")
	if !ok {
		t.Fatal("expected key hit")
	}
	if byID != byKey || byID != p {
		t.Fatal("indices point at different instances")
	}
}

func TestPutDropsStaleEntries(t *testing.T) {
	t.Parallel()

	c := New(0)
	c.Put(protectionAt(1, 5))

	moved := protectionAt(1, 6)
	c.Put(moved)
	if _, ok := c.GetAt("w:5:0:0"); ok {
		t.Fatal("stale key survived a move")
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}

	replacement := protectionAt(2, 6)
	c.Put(replacement)
	if _, ok := c.Get(1); ok {
		t.Fatal("stale id survived a key takeover")
	}
	if got, _ := c.GetAt("w:6:0:0"); got != replacement {
		t.Fatal("expected replacement at key")
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	c := New(0)
	p := protectionAt(1, 5)
	c.Put(p)
	c.Put(protectionAt(2, 7))

	c.Invalidate(p)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected id miss")
	}
	if _, ok := c.GetAt("w:5:0:0"); ok {
		t.Fatal("expected key miss")
	}

	c.InvalidateID(2)
	if c.Size() != 0 {
		t.Fatalf("size = %d", c.Size())
	}
	c.InvalidateID(99)
}

func TestInvalidateDoesNotDropOtherOccupant(t *testing.T) {
	t.Parallel()

	c := New(0)
	occupant := protectionAt(2, 5)
	c.Put(occupant)

	c.Invalidate(protectionAt(1, 5))
	if got, ok := c.GetAt("w:5:0:0"); !ok || got != occupant {
		t.Fatal("invalidate removed a different protection")
	}
}

func TestMoveInPlaceReleasesOldKey(t *testing.T) {
	t.Parallel()

	c := New(0)
	p := &domain.Protection{ID: 1, Location: domain.Location{World: "w", Y: 64}}
	c.Put(p)

	p.Location = domain.Location{World: "w", X: 9, Y: 64, Z: 9}
	c.Invalidate(p)
	c.Put(p)

	if got, ok := c.GetAt("w:0:64:0"); ok {
		t.Fatalf("old key still resolves to id %d at %s", got.ID, got.Location.Key())
	}
	if got, ok := c.GetAt("w:9:64:9"); !ok || got != p {
		t.Fatal("expected new key to resolve to the moved instance")
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}
}

func TestMoveInPlaceThenPutReleasesOldKey(t *testing.T) {
	t.Parallel()

	c := New(0)
	p := protectionAt(1, 5)
	c.Put(p)

	p.Location.X = 6
	c.Put(p)
	if _, ok := c.GetAt("w:5:0:0"); ok {
		t.Fatal("old key survived an in-place move")
	}
	if got, ok := c.GetAt("w:6:0:0"); !ok || got != p {
		t.Fatal("expected new key hit")
	}
}

func TestInvalidateIDAfterMoveInPlace(t *testing.T) {
	t.Parallel()

	c := New(0)
	p := protectionAt(1, 5)
	c.Put(p)

	p.Location.X = 8
	c.InvalidateID(1)
	if _, ok := c.GetAt("w:5:0:0"); ok {
		t.Fatal("stored key survived removal")
	}
	if _, ok := c.GetAt("w:8:0:0"); ok {
		t.Fatal("unexpected entry at the moved location")
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d, want 0", c.Size())
	}
}

func TestCompleteness(t *testing.T) {
	t.Parallel()

	c := New(0)
	if c.Complete() {
		t.Fatal("unknown live count must not be complete")
	}
	c.SetLiveCount(2)
	c.Put(protectionAt(1, 1))
	if c.Complete() {
		t.Fatal("expected incomplete")
	}
	c.Put(protectionAt(2, 2))
	if !c.Complete() {
		t.Fatal("expected complete")
	}

	c.Put(protectionAt(3, 3))
	c.AdjustLiveCount(1)
	if !c.Complete() || c.LiveCount() != 3 {
		t.Fatalf("live count = %d", c.LiveCount())
	}

	c.Clear()
	if c.Size() != 0 || c.Complete() {
		t.Fatal("clear must empty the cache and keep the live count")
	}
	c.SetLiveCount(0)
	if !c.Complete() {
		t.Fatal("empty store with empty cache is complete")
	}
}

func TestEachStopsEarly(t *testing.T) {
	t.Parallel()

	c := New(0)
	for i := int64(1); i <= 3; i++ {
		c.Put(protectionAt(i, int(i)))
	}
	visited := 0
	c.Each(func(*domain.Protection) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("visited = %d, want 1", visited)
	}
}
