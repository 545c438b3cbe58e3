// Package node implements a small generic doubly-linked list used for job
// chains.
package node

// Node is an element of a List.
type Node[T any] struct {
	Value T

	next, prev *Node[T]
	list       *List[T]
}

// Next returns next node or nil.
func (n *Node[T]) Next() *Node[T] {
	return n.next
}

// Prev returns previous node or nil.
func (n *Node[T]) Prev() *Node[T] {
	return n.prev
}

// List is a doubly-linked list. Zero value is an empty list ready to use.
type List[T any] struct {
	head, tail *Node[T]
	len        int
}

// Len returns number of nodes.
func (l *List[T]) Len() int {
	return l.len
}

// Front returns first node or nil.
func (l *List[T]) Front() *Node[T] {
	return l.head
}

// Back returns last node or nil.
func (l *List[T]) Back() *Node[T] {
	return l.tail
}

// PushBack appends v and returns its node.
func (l *List[T]) PushBack(v T) *Node[T] {
	n := &Node[T]{Value: v, list: l, prev: l.tail}
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.len++
	return n
}

// InsertAfter inserts v right after mark.
func (l *List[T]) InsertAfter(v T, mark *Node[T]) *Node[T] {
	if mark == nil || mark.list != l {
		return nil
	}
	if mark == l.tail {
		return l.PushBack(v)
	}
	n := &Node[T]{Value: v, list: l, prev: mark, next: mark.next}
	mark.next.prev = n
	mark.next = n
	l.len++
	return n
}

// Remove unlinks n and returns the node that followed it.
func (l *List[T]) Remove(n *Node[T]) *Node[T] {
	if n == nil || n.list != l {
		return nil
	}
	next := n.next
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next, n.prev, n.list = nil, nil, nil
	l.len--
	return next
}

// Clear removes all nodes.
func (l *List[T]) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		n.next, n.prev, n.list = nil, nil, nil
		n = next
	}
	l.head, l.tail, l.len = nil, nil, 0
}

// ForNext calls fn for every node starting at n until fn returns false.
func ForNext[T any](n *Node[T], fn func(*Node[T]) bool) {
	for ; n != nil; n = n.next {
		if !fn(n) {
			return
		}
	}
}

// ForPrev calls fn for every node from n backwards until fn returns false.
func ForPrev[T any](n *Node[T], fn func(*Node[T]) bool) {
	for ; n != nil; n = n.prev {
		if !fn(n) {
			return
		}
	}
}

// Values returns list values in order.
func (l *List[T]) Values() []T {
	vs := make([]T, 0, l.len)
	for n := l.head; n != nil; n = n.next {
		vs = append(vs, n.Value)
	}
	return vs
}
