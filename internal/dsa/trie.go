// Package dsa provides the radix tree behind the index's source catalogue.
// Uses go-radix for a compressed prefix tree.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for a compressed prefix tree (radix tree).
// Source identifiers are usually file paths that share long prefixes
// (data/documents/...), which a radix tree stores once.
//
// Not safe for concurrent use; callers hold their own lock.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds or replaces a key.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Get looks up a key.
func (t *Trie[V]) Get(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// Update applies fn to the current value of key (zero value when absent)
// and stores the result.
func (t *Trie[V]) Update(key string, fn func(V) V) {
	cur, _ := t.Get(key)
	t.tree.Insert(key, fn(cur))
}

// Delete removes a key and reports whether it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, ok := t.tree.Delete(key)
	return ok
}

// Entry is a key/value pair returned by prefix walks.
type Entry[V any] struct {
	Key   string
	Value V
}

// WithPrefix returns all entries whose key starts with prefix, in
// lexicographic key order.
// Time Complexity: O(k + m) where k is prefix length, m is number of matches.
func (t *Trie[V]) WithPrefix(prefix string) []Entry[V] {
	var out []Entry[V]
	t.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		if val, ok := v.(V); ok {
			out = append(out, Entry[V]{Key: k, Value: val})
		}
		return false
	})
	return out
}

// Len returns the number of keys in the tree.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}

// Clear removes all keys from the tree.
func (t *Trie[V]) Clear() {
	t.tree = radix.New()
}
