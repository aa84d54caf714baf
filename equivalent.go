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

import "hash/maphash"

// Equivalence describes an alternate representation Q of the keys of a
// Map[K,V], allowing the map to be queried without constructing a K (for
// example looking up a string-keyed map with a []byte).
//
// Hash must return the same value as the map's hash function for any q and
// key where Equal(q, key) is true. Lookups silently miss otherwise.
type Equivalence[K comparable, Q any] struct {
	Hash  func(seed maphash.Seed, q Q) uint64
	Equal func(q Q, key K) bool
}

// GetEquivalent is like Map.Get, querying by an equivalent of the key.
func GetEquivalent[K comparable, V, Q any](m *Map[K, V], eq Equivalence[K, Q], q Q) (value V, ok bool) {
	if i, j := findEquivalent(m, eq, q); j >= 0 {
		return m.buckets[i].slots[j].value, true
	}
	return value, false
}

// ContainsEquivalent is like Map.Contains, querying by an equivalent of the
// key.
func ContainsEquivalent[K comparable, V, Q any](m *Map[K, V], eq Equivalence[K, Q], q Q) bool {
	_, j := findEquivalent(m, eq, q)
	return j >= 0
}

// RemoveEquivalent is like Map.Remove, querying by an equivalent of the key.
func RemoveEquivalent[K comparable, V, Q any](m *Map[K, V], eq Equivalence[K, Q], q Q) (value V, ok bool) {
	i, j := findEquivalent(m, eq, q)
	if j < 0 {
		return value, false
	}
	b := &m.buckets[i]
	value = b.slots[j].value
	b.swapRemove(j)
	m.used--
	m.gen++
	if invariants {
		m.checkInvariants()
	}
	return value, true
}

// findEquivalent returns the bucket and slot index of the entry matching q.
// The slot index is -1 if there is no such entry.
func findEquivalent[K comparable, V, Q any](m *Map[K, V], eq Equivalence[K, Q], q Q) (bucket, slot int) {
	if m.used == 0 {
		return 0, -1
	}
	i := bucketIndex(eq.Hash(m.seed, q), len(m.buckets))
	b := &m.buckets[i]
	for j := range b.slots {
		if eq.Equal(q, b.slots[j].key) {
			return i, j
		}
	}
	return i, -1
}

// HashString hashes a string-like key with maphash.String. A Map created
// WithHash(HashString[K]) can be queried with BytesEquivalence.
func HashString[K ~string](seed maphash.Seed, key K) uint64 {
	return maphash.String(seed, string(key))
}

// BytesEquivalence returns an Equivalence that queries a string-keyed Map
// using byte slices. The map must hash its keys with HashString.
func BytesEquivalence[K ~string]() Equivalence[K, []byte] {
	return Equivalence[K, []byte]{
		Hash: maphash.Bytes,
		Equal: func(q []byte, key K) bool {
			return string(q) == string(key)
		},
	}
}
