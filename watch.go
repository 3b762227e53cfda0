package persist

import "container/list"

type observer[T any] struct {
	handle uint64
	fn     func(T)
}

// observers keeps callbacks in registration order with O(1) removal by
// handle. Handles are never reused.
type observers[T any] struct {
	order   *list.List
	entries map[uint64]*list.Element
	next    uint64
}

func newObservers[T any]() *observers[T] {
	return &observers[T]{
		order:   list.New(),
		entries: make(map[uint64]*list.Element),
	}
}

func (o *observers[T]) add(fn func(T)) uint64 {
	o.next++
	handle := o.next
	o.entries[handle] = o.order.PushBack(observer[T]{handle: handle, fn: fn})
	return handle
}

func (o *observers[T]) remove(handle uint64) {
	element, ok := o.entries[handle]
	if !ok {
		return
	}
	o.order.Remove(element)
	delete(o.entries, handle)
}

func (o *observers[T]) len() int {
	return len(o.entries)
}

// notify calls every callback registered when notification starts. A
// callback removed by an earlier one during the same pass is skipped.
func (o *observers[T]) notify(value T) {
	if len(o.entries) == 0 {
		return
	}
	pending := make([]observer[T], 0, len(o.entries))
	for e := o.order.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(observer[T]))
	}
	for _, entry := range pending {
		if _, ok := o.entries[entry.handle]; !ok {
			continue
		}
		entry.fn(value)
	}
}

// Watch registers fn to run with the current value after every successful
// save, in registration order. The returned function removes exactly this
// registration; calling it again is a no-op.
func (p *Persist[T]) Watch(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	obs := p.observers
	handle := obs.add(fn)
	return func() {
		obs.remove(handle)
	}
}

// Watchers reports how many callbacks are registered.
func (p *Persist[T]) Watchers() int {
	return p.observers.len()
}
