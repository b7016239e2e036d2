package engine

import "container/list"

// restingBook holds strategy orders waiting for a market move. Iteration
// follows submission order so a pass over it is reproducible.
type restingBook struct {
	order *list.List
	index map[uint64]*list.Element
}

func newRestingBook() *restingBook {
	return &restingBook{
		order: list.New(),
		index: make(map[uint64]*list.Element),
	}
}

func (b *restingBook) add(o Order) {
	if e, ok := b.index[o.ID]; ok {
		e.Value = o
		return
	}
	b.index[o.ID] = b.order.PushBack(o)
}

func (b *restingBook) remove(id uint64) bool {
	e, ok := b.index[id]
	if !ok {
		return false
	}
	b.order.Remove(e)
	delete(b.index, id)
	return true
}

func (b *restingBook) contains(id uint64) bool {
	_, ok := b.index[id]
	return ok
}

func (b *restingBook) len() int { return len(b.index) }

// each visits orders in submission order. fn must not mutate the book.
func (b *restingBook) each(fn func(Order)) {
	for e := b.order.Front(); e != nil; e = e.Next() {
		fn(e.Value.(Order))
	}
}

func (b *restingBook) orders() []Order {
	out := make([]Order, 0, b.len())
	b.each(func(o Order) { out = append(out, o) })
	return out
}
