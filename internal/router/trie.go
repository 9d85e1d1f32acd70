package router

import "strings"

// level is a move-to-front list: search promotes a matching element to the
// head as a side effect, so repeatedly accessed edges stay cheap to find.
// Generalizes the original sub_list.rs Level<T>.
type level[T any] struct {
	items []T
}

func (l *level[T]) insertFront(v T) {
	l.items = append(l.items, v)
	copy(l.items[1:], l.items[:len(l.items)-1])
	l.items[0] = v
}

// search returns a pointer to the first item matching pred, promoting it to
// the front of the list. Returns nil if no item matches.
func (l *level[T]) search(pred func(*T) bool) *T {
	for i := range l.items {
		if pred(&l.items[i]) {
			if i != 0 {
				v := l.items[i]
				copy(l.items[1:i+1], l.items[:i])
				l.items[0] = v
			}
			return &l.items[0]
		}
	}
	return nil
}

func (l *level[T]) remove(pred func(*T) bool) {
	for i := range l.items {
		if pred(&l.items[i]) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *level[T]) len() int {
	return len(l.items)
}

// childEdge is one entry in a node's move-to-front child list: the token
// that reaches the child, and the child node itself.
type childEdge struct {
	token string
	node  *node
}

// node is one trie node: the subscriptions terminating here, plus the
// move-to-front list of child edges keyed by the next subject token.
type node struct {
	subs     []*Subscription
	children level[childEdge]
}

func newNode() *node {
	return &node{}
}

func (n *node) childEntry(token string) *node {
	edge := n.children.search(func(e *childEdge) bool { return e.token == token })
	if edge == nil {
		return nil
	}
	return edge.node
}

func (n *node) childEntryOrCreate(token string) *node {
	if e := n.childEntry(token); e != nil {
		return e
	}
	child := newNode()
	n.children.insertFront(childEdge{token: token, node: child})
	return child
}

// count returns the number of leaf nodes (nodes with no children) reachable
// from n, counting n itself when it has no children, mirroring
// SubList::total. A leaf is counted whether or not it still holds
// subscriptions.
func (n *node) count() int {
	if n.children.len() == 0 {
		return 1
	}
	sum := 0
	for i := range n.children.items {
		sum += n.children.items[i].node.count()
	}
	return sum
}

// trie is the subject-token index. It is not itself safe for concurrent
// use; the Router façade is responsible for serializing access with its
// mutex.
type trie struct {
	root *node
}

func newTrie() *trie {
	return &trie{root: newNode()}
}

// splitSubject tokenizes a subject on '.'. Empty tokens are preserved, not
// dropped, matching the canonical splitter described in the spec.
func splitSubject(subject string) []string {
	return strings.Split(subject, ".")
}

// subscribe inserts sub at the terminal node for subject, creating
// intermediate nodes as needed. Newly traversed edges land at the head of
// their parent's child list.
func (t *trie) subscribe(subject string, sub *Subscription) {
	n := t.root
	for _, tok := range splitSubject(subject) {
		n = n.childEntryOrCreate(tok)
	}
	n.subs = append(n.subs, sub)
}

// match walks subject and returns the terminal node itself (not a copy of
// its subscription slice) so callers may iterate its subs and mark entries
// for removal. Every traversed edge is promoted to the head of its parent's
// child list. Returns nil if any token along the path is absent.
func (t *trie) match(subject string) *node {
	n := t.root
	for _, tok := range splitSubject(subject) {
		n = n.childEntry(tok)
		if n == nil {
			return nil
		}
	}
	return n
}

// removeWhere traverses the entire trie and removes every subscription
// satisfying pred, from every node regardless of subject.
func (t *trie) removeWhere(pred func(*Subscription) bool) {
	var walk func(n *node)
	walk = func(n *node) {
		n.subs = filterSubs(n.subs, pred)
		for i := range n.children.items {
			walk(n.children.items[i].node)
		}
	}
	walk(t.root)
}

// filterSubs returns subs with every element satisfying pred removed,
// preserving the relative order of the survivors.
func filterSubs(subs []*Subscription, pred func(*Subscription) bool) []*Subscription {
	out := subs[:0]
	for _, s := range subs {
		if !pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// count returns the trie's total leaf-node count; an empty trie counts its
// root as one leaf.
func (t *trie) count() int {
	return t.root.count()
}
