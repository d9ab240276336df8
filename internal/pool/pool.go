package pool

import "swingspin/bowler/internal/physics"

// Item is anything the pool can place and show or hide.
type Item interface {
	Place(position physics.Vec3)
	SetVisible(visible bool)
}

// Slot constrains pooled items to comparable handles.
type Slot interface {
	Item
	comparable
}

// Pool is a fixed-size circular reuse buffer. Acquire never blocks: it hands
// out the least recently acquired item, even when that item is still in use.
type Pool[T Slot] struct {
	items    []T
	next     int
	acquired uint64
	recycled uint64
	released uint64
	inUse    []bool
}

// New hides every item and returns the pool. It panics when items is empty.
func New[T Slot](items []T) *Pool[T] {
	if len(items) == 0 {
		panic("pool: at least one item is required")
	}
	p := &Pool[T]{items: append([]T(nil), items...), inUse: make([]bool, len(items))}
	for _, item := range p.items {
		item.SetVisible(false)
	}
	return p
}

// Acquire moves the next item to position and returns it.
func (p *Pool[T]) Acquire(position physics.Vec3) T {
	slot := p.next
	item := p.items[slot]
	p.next = (p.next + 1) % len(p.items)
	//1.- Count forced reuse of an item that was never released.
	if p.inUse[slot] {
		p.recycled++
	}
	p.inUse[slot] = true
	p.acquired++
	item.Place(position)
	return item
}

// Release hides the item. Releasing an item twice is harmless.
func (p *Pool[T]) Release(item T) {
	for slot, candidate := range p.items {
		if candidate != item {
			continue
		}
		item.SetVisible(false)
		if p.inUse[slot] {
			p.inUse[slot] = false
			p.released++
		}
		return
	}
}

// Len returns the fixed capacity.
func (p *Pool[T]) Len() int { return len(p.items) }

// Items returns the pooled items in slot order.
func (p *Pool[T]) Items() []T { return append([]T(nil), p.items...) }

// Stats summarises pool usage.
type Stats struct {
	Size     int    `json:"size"`
	InUse    int    `json:"in_use"`
	Acquired uint64 `json:"acquired"`
	Recycled uint64 `json:"recycled"`
	Released uint64 `json:"released"`
}

// Stats returns a usage snapshot.
func (p *Pool[T]) Stats() Stats {
	inUse := 0
	for _, used := range p.inUse {
		if used {
			inUse++
		}
	}
	return Stats{Size: len(p.items), InUse: inUse, Acquired: p.acquired, Recycled: p.recycled, Released: p.released}
}
