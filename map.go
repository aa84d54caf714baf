// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package chainmap is a Go implementation of a separately chained hash
// table. See https://en.wikipedia.org/wiki/Hash_table#Separate_chaining.
//
// # Layout
//
// A Map is an array of buckets. Each bucket is a chain: a growable slice of
// key/value slots whose keys all hash to the bucket's index. The number of
// buckets is zero for a freshly constructed map and a power of two once the
// first entry has been inserted.
//
//	buckets
//	+---+
//	| 0 | --> [k3 v3] [k9 v9]
//	+---+
//	| 1 | --> []
//	+---+
//	| 2 | --> [k1 v1]
//	+---+
//	| 3 | --> [k4 v4] [k0 v0] [k7 v7]
//	+---+
//
// A key is routed to a bucket by reducing hash(key) modulo the number of
// buckets. The same routing is used for lookups, insertion, deletion and
// rehashing so that a key always lives in exactly one bucket for a given
// bucket count.
//
// # Growth
//
// Before an insertion the map checks whether accepting one more entry would
// push the load factor (entries per bucket) above 3/4. If so, or if there are
// no buckets at all, the bucket array is replaced by one twice as large (or
// of size 1 when starting from nothing) and every entry is rehashed into it.
// Growth is the only operation whose cost is proportional to the number of
// entries; amortized over insertions it keeps Insert O(1). Deletion never
// shrinks the bucket array.
//
// # Deletion
//
// An entry is removed from its chain by swapping it with the last slot of the
// chain and truncating. This is O(1) but does not preserve the order of the
// chain, so callers must not depend on the order of entries within a bucket.
//
// # Entries
//
// Map.Entry performs a single hash and chain scan and returns a handle that
// remembers where the key lives (or where it would be appended). The handle
// resolves a get-or-insert without hashing or scanning a second time. Handles
// are positions in the map rather than pointers, and are invalidated by any
// other mutation of the map.
package chainmap

import (
	"fmt"
	"hash/maphash"
	"math/bits"
	"strings"
)

const (
	debug = false

	// initialBuckets is the bucket count an empty map grows to on its first
	// insertion.
	initialBuckets = 1

	// The maximum load factor is maxLoadNum/maxLoadDen. Kept as a fraction
	// to allow integer math.
	maxLoadNum = 3
	maxLoadDen = 4
)

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Bucket is a chain of slots whose keys all route to the same index of a
// Map's bucket array. Within a bucket, at most one slot holds a given key.
type Bucket[K comparable, V any] struct {
	slots []Slot[K, V]
}

// Len returns the number of slots in the bucket.
func (b *Bucket[K, V]) Len() int {
	return len(b.slots)
}

// swapRemove removes the slot at index i by moving the last slot of the
// chain into its place.
func (b *Bucket[K, V]) swapRemove(i int) {
	last := len(b.slots) - 1
	b.slots[i] = b.slots[last]
	b.slots[last] = Slot[K, V]{}
	b.slots = b.slots[:last]
}

type hashFn[K comparable] func(seed maphash.Seed, key K) uint64

// Map is an unordered map from keys to values with Insert, Get, Remove,
// Contains, Entry and All operations. By default, a Map[K,V] hashes keys
// with maphash.Comparable, though a different hash function can be specified
// using the WithHash option.
//
// Keys are compared with ==. A key that is not equal to itself (such as a
// NaN float) can be inserted but never found again.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function for keys of type K.
	hash hashFn[K]
	seed maphash.Seed
	// The allocator to use for the bucket array.
	allocator Allocator[K, V]
	// The bucket array. Either empty or a power of two in length.
	buckets []Bucket[K, V]
	// The number of slots across all buckets (i.e. the number of elements
	// in the map).
	used int
	// gen is bumped by every mutation. Entries and iterators record it on
	// creation and refuse to proceed once it has moved.
	gen uint64
}

// New constructs a new Map with the specified initial capacity. If
// initialCapacity is 0 the map will start out with no buckets and will grow
// on the first insert. The zero value for a Map is not usable; use New or
// Init.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(initialCapacity, options...)
	return m
}

// Init initializes a Map with the specified initial capacity. Init can be
// invoked on a zero Map to initialize it, or on a previously used Map to
// reset it to an empty state. Any buckets owned by a previously used Map are
// dropped without being returned to its allocator; call Close first if the
// allocator needs them back.
func (m *Map[K, V]) Init(initialCapacity int, options ...option[K, V]) {
	*m = Map[K, V]{
		hash:      maphash.Comparable[K],
		seed:      maphash.MakeSeed(),
		allocator: defaultAllocator[K, V]{},
	}

	for _, op := range options {
		op.apply(m)
	}

	if initialCapacity > 0 {
		m.resize(bucketsForCapacity(initialCapacity))
	}

	if invariants {
		m.checkInvariants()
	}
}

// Close closes the map, releasing the bucket array back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	if len(m.buckets) > 0 {
		for i := range m.buckets {
			clear(m.buckets[i].slots)
			m.buckets[i].slots = nil
		}
		m.allocator.FreeBuckets(m.buckets)
	}
	m.buckets = nil
	m.used = 0
	m.gen++
	m.allocator = nil
}

// Insert inserts an entry into the map. If an entry with an equal key
// already exists its value is overwritten and the previous value is returned
// with replaced=true; the stored key is left untouched. Otherwise the entry
// is appended to its bucket and replaced is false.
func (m *Map[K, V]) Insert(key K, value V) (old V, replaced bool) {
	if grow, n := growthPolicy(len(m.buckets), m.used); grow {
		m.resize(n)
	}

	i := bucketIndex(m.hash(m.seed, key), len(m.buckets))
	b := &m.buckets[i]
	m.gen++

	for j := range b.slots {
		s := &b.slots[j]
		if s.key == key {
			if debug {
				fmt.Printf("insert(updating): bucket=%d slot=%d key=%v\n", i, j, key)
			}
			old, s.value = s.value, value
			return old, true
		}
	}

	b.slots = append(b.slots, Slot[K, V]{key: key, value: value})
	m.used++
	if debug {
		fmt.Printf("insert(appending): bucket=%d slot=%d key=%v used=%d\n",
			i, len(b.slots)-1, key, m.used)
	}
	if invariants {
		m.checkInvariants()
	}
	return old, false
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if m.used == 0 {
		return value, false
	}
	b := &m.buckets[bucketIndex(m.hash(m.seed, key), len(m.buckets))]
	for j := range b.slots {
		if b.slots[j].key == key {
			return b.slots[j].value, true
		}
	}
	return value, false
}

// Contains reports whether the map holds an entry for key.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Remove deletes the entry corresponding to the specified key from the map
// and returns its value. It is a noop returning ok=false to remove a
// non-existent key. Removal never shrinks the bucket array.
func (m *Map[K, V]) Remove(key K) (value V, ok bool) {
	if m.used == 0 {
		return value, false
	}
	i := bucketIndex(m.hash(m.seed, key), len(m.buckets))
	b := &m.buckets[i]
	for j := range b.slots {
		if b.slots[j].key == key {
			value = b.slots[j].value
			b.swapRemove(j)
			m.used--
			m.gen++
			if debug {
				fmt.Printf("remove(%v): bucket=%d slot=%d used=%d\n", key, i, j, m.used)
			}
			if invariants {
				m.checkInvariants()
			}
			return value, true
		}
	}
	return value, false
}

// Clear deletes all entries from the map, leaving the bucket array in place.
func (m *Map[K, V]) Clear() {
	for i := range m.buckets {
		clear(m.buckets[i].slots)
		m.buckets[i].slots = m.buckets[i].slots[:0]
	}
	m.used = 0
	m.gen++
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.used == 0
}

// bucketCount returns the length of the bucket array.
func (m *Map[K, V]) bucketCount() int {
	return len(m.buckets)
}

// bucketIndex reduces the hash h to an index in a bucket array of length n.
// It is the only mapping from hashes to buckets, which is what allows resize
// to redistribute entries consistently.
func bucketIndex(h uint64, n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("chainmap: bucket index requested for %d buckets", n))
	}
	return int(h % uint64(n))
}

// growthPolicy reports whether a map with the given number of buckets and
// items has to grow before accepting one more item, and the bucket count to
// grow to. An empty bucket array always grows to initialBuckets. Otherwise
// the array doubles whenever the post-insertion load factor would exceed
// maxLoadNum/maxLoadDen.
func growthPolicy(buckets, items int) (grow bool, newBuckets int) {
	if buckets == 0 {
		return true, initialBuckets
	}
	if maxLoadDen*(items+1) > maxLoadNum*buckets {
		return true, 2 * buckets
	}
	return false, buckets
}

// bucketsForCapacity returns the smallest power of two bucket count that
// holds capacity entries without exceeding the maximum load factor.
func bucketsForCapacity(capacity int) int {
	n := 1
	if capacity > 0 {
		n = 1 << bits.Len(uint((maxLoadDen*capacity-1)/maxLoadNum))
	}
	return n
}

// resize replaces the bucket array with one of newLen buckets, rehashing
// every entry into it. The old array is only modified after the new one is
// fully populated, so a panicking hash function leaves the map intact.
func (m *Map[K, V]) resize(newLen int) {
	if newLen&(newLen-1) != 0 {
		panic(fmt.Sprintf("chainmap: bucket count %d is not a power of 2", newLen))
	}

	old := m.buckets
	buckets := m.allocator.AllocBuckets(newLen)
	for i := range old {
		for _, s := range old[i].slots {
			j := bucketIndex(m.hash(m.seed, s.key), newLen)
			buckets[j].slots = append(buckets[j].slots, s)
		}
	}

	if debug {
		fmt.Printf("resize: buckets=%d->%d used=%d\n", len(old), newLen, m.used)
	}

	m.buckets = buckets
	m.gen++

	if len(old) > 0 {
		for i := range old {
			clear(old[i].slots)
			old[i].slots = nil
		}
		m.allocator.FreeBuckets(old)
	}

	if invariants {
		m.checkInvariants()
	}
}

// checkInvariants panics if the map's structure is inconsistent. It is run
// after every mutation when built with the invariants tag, and directly by
// tests.
func (m *Map[K, V]) checkInvariants() {
	n := len(m.buckets)
	if n&(n-1) != 0 {
		panic(fmt.Sprintf("invariant failed: bucket count %d is not a power of 2\n%s", n, m.debugString()))
	}

	var used int
	for i := range m.buckets {
		b := &m.buckets[i]
		for j := range b.slots {
			s := &b.slots[j]
			if want := bucketIndex(m.hash(m.seed, s.key), n); want != i {
				panic(fmt.Sprintf("invariant failed: slot(%d,%d): %v routes to bucket %d\n%s",
					i, j, s.key, want, m.debugString()))
			}
			for k := j + 1; k < len(b.slots); k++ {
				if b.slots[k].key == s.key {
					panic(fmt.Sprintf("invariant failed: bucket(%d): %v found at slots %d and %d\n%s",
						i, s.key, j, k, m.debugString()))
				}
			}
			used++
		}
	}

	if used != m.used {
		panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
			used, m.used, m.debugString()))
	}

	// Growth doubles once per insertion, so the 1->2 bucket step briefly
	// holds 2 entries.
	if limit := max(2, maxLoadNum*n/maxLoadDen); used > limit {
		panic(fmt.Sprintf("invariant failed: %d entries exceed load limit %d for %d buckets\n%s",
			used, limit, n, m.debugString()))
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "buckets=%d  used=%d  gen=%d\n", len(m.buckets), m.used, m.gen)
	for i := range m.buckets {
		b := &m.buckets[i]
		if len(b.slots) == 0 {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", i)
		for j := range b.slots {
			fmt.Fprintf(&buf, " [%v=%v]", b.slots[j].key, b.slots[j].value)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
