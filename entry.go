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

package chainmap

import "fmt"

// Entry is a handle to the position of a single key in a Map, obtained from
// Map.Entry. An occupied entry refers to the slot already holding the key; a
// vacant entry holds the key and the bucket it would be appended to.
//
// An Entry is only valid until the next mutation of its Map. Resolving an
// Entry after the Map has been modified panics.
type Entry[K comparable, V any] struct {
	m      *Map[K, V]
	key    K
	bucket int
	// slot is the index of key within the bucket, or -1 if vacant.
	slot int
	gen  uint64
}

// Entry returns the entry for key. Like Insert, Entry grows the map first if
// one more element would exceed the maximum load factor, so that a vacant
// entry can be filled without rehashing.
func (m *Map[K, V]) Entry(key K) Entry[K, V] {
	if grow, n := growthPolicy(len(m.buckets), m.used); grow {
		m.resize(n)
	}

	i := bucketIndex(m.hash(m.seed, key), len(m.buckets))
	e := Entry[K, V]{m: m, key: key, bucket: i, slot: -1, gen: m.gen}
	b := &m.buckets[i]
	for j := range b.slots {
		if b.slots[j].key == key {
			e.slot = j
			break
		}
	}
	return e
}

// Occupied reports whether the map held the key when the entry was created.
func (e Entry[K, V]) Occupied() bool {
	return e.slot >= 0
}

// Key returns the key the entry was created for.
func (e Entry[K, V]) Key() K {
	return e.key
}

// OrInsert returns a pointer to the value for the entry's key, first
// inserting value if the entry is vacant. The pointer is valid until the
// next mutation of the map.
func (e Entry[K, V]) OrInsert(value V) *V {
	e.check()
	if e.Occupied() {
		return e.occupiedValue()
	}
	return e.insert(value)
}

// OrInsertWith is like OrInsert, but the value is produced by calling f. f
// is called at most once, and only if the entry is vacant. f must not modify
// the map.
func (e Entry[K, V]) OrInsertWith(f func() V) *V {
	e.check()
	if e.Occupied() {
		return e.occupiedValue()
	}
	value := f()
	e.check()
	return e.insert(value)
}

// OrInsertDefault is like OrInsert using the zero value of V.
func (e Entry[K, V]) OrInsertDefault() *V {
	var zero V
	return e.OrInsert(zero)
}

func (e Entry[K, V]) check() {
	if e.m == nil {
		panic("chainmap: use of zero Entry")
	}
	if e.m.gen != e.gen {
		panic(fmt.Sprintf("chainmap: entry for %v used after map was modified", e.key))
	}
}

func (e Entry[K, V]) occupiedValue() *V {
	return &e.m.buckets[e.bucket].slots[e.slot].value
}

func (e Entry[K, V]) insert(value V) *V {
	m := e.m
	b := &m.buckets[e.bucket]
	b.slots = append(b.slots, Slot[K, V]{key: e.key, value: value})
	m.used++
	m.gen++
	if debug {
		fmt.Printf("entry(inserting): bucket=%d slot=%d key=%v used=%d\n",
			e.bucket, len(b.slots)-1, e.key, m.used)
	}
	if invariants {
		m.checkInvariants()
	}
	return &b.slots[len(b.slots)-1].value
}
