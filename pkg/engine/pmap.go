package engine

import "fmt"

// PersistentMap is a copy-on-write map with shallow structural sharing,
// generalized from the teacher's ConditionCache bucketed-map-plus-list
// shape: instead of one big map copied wholesale on every mutation, keys
// are sharded across a fixed number of buckets, and `Set` only clones
// the bucket that changed. Every exported operation returns a new
// PersistentMap; the receiver is never mutated, which is what lets
// ExecutionState hold many historical versions cheaply.
type PersistentMap[K comparable, V any] struct {
	buckets []map[K]V
}

const pmapBucketCount = 16

// NewPersistentMap returns an empty map.
func NewPersistentMap[K comparable, V any]() *PersistentMap[K, V] {
	return &PersistentMap[K, V]{buckets: make([]map[K]V, pmapBucketCount)}
}

func pmapHash[K comparable](key K) int {
	// fnv-1a over the %v formatting of key; good enough for a small,
	// fixed bucket count used purely to bound copy size, not for
	// adversarial hash resistance.
	h := uint32(2166136261)
	for _, b := range []byte(sprintKey(key)) {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h % pmapBucketCount)
}

// Get returns the value for key and whether it was present.
func (m *PersistentMap[K, V]) Get(key K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	idx := pmapHash(key)
	bucket := m.buckets[idx]
	if bucket == nil {
		var zero V
		return zero, false
	}
	v, ok := bucket[key]
	return v, ok
}

// Set returns a new map with key bound to value, sharing every bucket but
// the one key belongs to.
func (m *PersistentMap[K, V]) Set(key K, value V) *PersistentMap[K, V] {
	idx := pmapHash(key)
	next := &PersistentMap[K, V]{buckets: make([]map[K]V, pmapBucketCount)}
	copy(next.buckets, m.buckets)

	newBucket := make(map[K]V, len(m.buckets[idx])+1)
	for k, v := range m.buckets[idx] {
		newBucket[k] = v
	}
	newBucket[key] = value
	next.buckets[idx] = newBucket
	return next
}

// Delete returns a new map without key.
func (m *PersistentMap[K, V]) Delete(key K) *PersistentMap[K, V] {
	idx := pmapHash(key)
	if m.buckets[idx] == nil {
		return m
	}
	if _, ok := m.buckets[idx][key]; !ok {
		return m
	}
	next := &PersistentMap[K, V]{buckets: make([]map[K]V, pmapBucketCount)}
	copy(next.buckets, m.buckets)

	newBucket := make(map[K]V, len(m.buckets[idx]))
	for k, v := range m.buckets[idx] {
		if k != key {
			newBucket[k] = v
		}
	}
	next.buckets[idx] = newBucket
	return next
}

// Len returns the number of bindings.
func (m *PersistentMap[K, V]) Len() int {
	n := 0
	for _, b := range m.buckets {
		n += len(b)
	}
	return n
}

// Keys returns every bound key, in no particular order.
func (m *PersistentMap[K, V]) Keys() []K {
	out := make([]K, 0, m.Len())
	for _, b := range m.buckets {
		for k := range b {
			out = append(out, k)
		}
	}
	return out
}

// Range calls fn for every binding; iteration order is unspecified.
func (m *PersistentMap[K, V]) Range(fn func(K, V) bool) {
	for _, b := range m.buckets {
		for k, v := range b {
			if !fn(k, v) {
				return
			}
		}
	}
}

func sprintKey[K comparable](key K) string {
	switch v := any(key).(type) {
	case string:
		return v
	case fmtStringer:
		return v.String()
	default:
		return fmt.Sprint(key)
	}
}

type fmtStringer interface {
	String() string
}
