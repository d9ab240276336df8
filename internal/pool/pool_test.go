package pool

import (
	"testing"

	"swingspin/bowler/internal/physics"
)

type fakeItem struct {
	id       int
	position physics.Vec3
	visible  bool
}

func (f *fakeItem) Place(position physics.Vec3) { f.position = position }
func (f *fakeItem) SetVisible(visible bool)     { f.visible = visible }

func TestNewHidesEveryItem(t *testing.T) {
	items := []*fakeItem{{id: 0, visible: true}, {id: 1, visible: true}}
	New(items)
	for _, item := range items {
		if item.visible {
			t.Fatalf("item %d should start hidden", item.id)
		}
	}
}

func TestAcquireCyclesLeastRecentlyUsed(t *testing.T) {
	items := []*fakeItem{{id: 0}, {id: 1}, {id: 2}}
	p := New(items)
	var order []int
	for i := 0; i < 5; i++ {
		item := p.Acquire(physics.Vec3{Z: float64(i)})
		order = append(order, item.id)
		if item.position.Z != float64(i) {
			t.Fatalf("acquire should place the item, got %+v", item.position)
		}
	}
	want := []int{0, 1, 2, 0, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected acquisition order %v", order)
		}
	}
	stats := p.Stats()
	if stats.Acquired != 5 || stats.Recycled != 2 || stats.InUse != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSingleSlotPoolReusesSameItem(t *testing.T) {
	only := &fakeItem{}
	p := New([]*fakeItem{only})
	if p.Acquire(physics.Vec3{}) != only || p.Acquire(physics.Vec3{X: 1}) != only {
		t.Fatalf("single slot pool must always return the same item")
	}
	if p.Stats().Recycled != 1 {
		t.Fatalf("second acquire should count as forced reuse")
	}
}

func TestReleaseHidesAndFreesSlot(t *testing.T) {
	items := []*fakeItem{{id: 0}, {id: 1}}
	p := New(items)
	item := p.Acquire(physics.Vec3{})
	item.SetVisible(true)
	p.Release(item)
	p.Release(item)
	if item.visible {
		t.Fatalf("release should hide the item")
	}
	if stats := p.Stats(); stats.InUse != 0 || stats.Released != 1 {
		t.Fatalf("unexpected stats after release %+v", stats)
	}
	p.Release(&fakeItem{id: 9, visible: true})
}

func TestNewPanicsWithoutItems(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for empty pool")
		}
	}()
	New([]*fakeItem{})
}
