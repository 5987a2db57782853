package security

import (
	"container/list"
	"time"
)

// ledger is an insertion-ordered map with a size cap. When full, the oldest
// inserted key is evicted. Not safe for concurrent use; Tracker locks it.
type ledger[T any] struct {
	max   int
	order *list.List
	items map[string]*ledgerItem[T]
}

type ledgerItem[T any] struct {
	elem    *list.Element
	value   *T
	touched time.Time
}

func newLedger[T any](max int) *ledger[T] {
	return &ledger[T]{
		max:   max,
		order: list.New(),
		items: make(map[string]*ledgerItem[T]),
	}
}

// upsert returns the value for key, creating it with zero when absent, and
// marks it touched at now. evicted reports whether an older key was dropped.
func (l *ledger[T]) upsert(key string, now time.Time) (value *T, evicted bool) {
	if it, ok := l.items[key]; ok {
		it.touched = now
		return it.value, false
	}
	if l.max > 0 && len(l.items) >= l.max {
		if front := l.order.Front(); front != nil {
			oldest := front.Value.(string)
			l.order.Remove(front)
			delete(l.items, oldest)
			evicted = true
		}
	}
	it := &ledgerItem[T]{value: new(T), touched: now}
	it.elem = l.order.PushBack(key)
	l.items[key] = it
	return it.value, evicted
}

// prune removes entries not touched since cutoff.
func (l *ledger[T]) prune(cutoff time.Time) int {
	removed := 0
	for e := l.order.Front(); e != nil; {
		next := e.Next()
		key := e.Value.(string)
		if it := l.items[key]; it.touched.Before(cutoff) {
			l.order.Remove(e)
			delete(l.items, key)
			removed++
		}
		e = next
	}
	return removed
}

// values copies the entries in insertion order.
func (l *ledger[T]) values() []T {
	out := make([]T, 0, len(l.items))
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, *l.items[e.Value.(string)].value)
	}
	return out
}

func (l *ledger[T]) len() int { return len(l.items) }

func (l *ledger[T]) reset() {
	l.order.Init()
	l.items = make(map[string]*ledgerItem[T])
}
