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

// Iterator is a forward-only cursor over the entries of a Map, obtained
// from Map.Iter. Entries are visited in bucket order and, within a bucket,
// in chain order. This order is unrelated to insertion order.
//
// Any number of Iterators may be open over a Map at once. The Map must not
// be modified while an Iterator over it is in use; doing so causes the
// Iterator's next call to Next to panic.
type Iterator[K comparable, V any] struct {
	m      *Map[K, V]
	gen    uint64
	bucket int
	at     int
	done   bool
	key    K
	value  V
}

// Iter returns a new Iterator positioned before the first entry of m.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{m: m, gen: m.gen}
}

// Next advances the iterator to the next entry, returning false once every
// entry has been visited. An exhausted Iterator stays exhausted.
func (it *Iterator[K, V]) Next() bool {
	if it.done {
		return false
	}
	if it.m.gen != it.gen {
		panic("chainmap: map modified during iteration")
	}
	for buckets := it.m.buckets; it.bucket < len(buckets); it.bucket, it.at = it.bucket+1, 0 {
		if slots := buckets[it.bucket].slots; it.at < len(slots) {
			it.key, it.value = slots[it.at].key, slots[it.at].value
			it.at++
			return true
		}
	}
	var k K
	var v V
	it.key, it.value = k, v
	it.done = true
	return false
}

// Key returns the key at the iterator's current position. This is only
// valid after a call to Next that returns true.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value at the iterator's current position. This is only
// valid after a call to Next that returns true.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// All calls yield sequentially for each key and value present in the map,
// in the same order as Iter. If yield returns false, iteration stops. All is
// a range-over-func iterator:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// The map must not be modified by yield.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for it := m.Iter(); it.Next(); {
		if !yield(it.Key(), it.Value()) {
			return
		}
	}
}
