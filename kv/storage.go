package kv

import (
	"iter"

	"github.com/indigo-web/utils/strcomp"
)

type Pair struct {
	Key, Value string
	deleted    bool
}

// Storage is an associative structure for storing (string, string) pairs. It acts as a map but
// uses linear search instead, which proves to be more efficient on relatively low amount of
// entries, which often enough is the case. Keys are compared case-insensitively, the order
// of insertion is preserved.
type Storage struct {
	pairs   []Pair
	deleted int
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromPairs returns a new instance with already inserted pairs, keeping their order.
func NewFromPairs(pairs ...Pair) *Storage {
	kv := NewPrealloc(len(pairs))
	for _, p := range pairs {
		kv.Add(p.Key, p.Value)
	}

	return kv
}

// Add adds a new pair of key and value.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// Set replaces the value of the first entry with the key and removes all the others. If the key
// isn't presented yet, it's added.
func (s *Storage) Set(key, value string) *Storage {
	found := false

	for i := range s.pairs {
		pair := &s.pairs[i]
		if pair.deleted || !strcomp.EqualFold(pair.Key, key) {
			continue
		}

		if found {
			pair.deleted = true
			s.deleted++
			continue
		}

		pair.Key, pair.Value = key, value
		found = true
	}

	if !found {
		s.Add(key, value)
	}

	return s
}

// Delete removes all the entries with the key.
func (s *Storage) Delete(key string) *Storage {
	for i := range s.pairs {
		pair := &s.pairs[i]
		if !pair.deleted && strcomp.EqualFold(pair.Key, key) {
			pair.deleted = true
			s.deleted++
		}
	}

	return s
}

// Value returns the first value, corresponding to the key. Otherwise, empty string is returned
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or custom value, defined
// via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool, indicating whether the value was found. If it wasn't, it'll
// be an empty string.
func (s *Storage) Get(key string) (value string, found bool) {
	for _, pair := range s.pairs {
		if !pair.deleted && strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns an iterator over all values of the key, in their order of appearance.
func (s *Storage) Values(key string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, pair := range s.pairs {
			if pair.deleted || !strcomp.EqualFold(pair.Key, key) {
				continue
			}

			if !yield(pair.Value) {
				return
			}
		}
	}
}

// Keys returns an iterator over unique keys. Entries deleted during the iteration are
// respected.
func (s *Storage) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, pair := range s.pairs {
			if pair.deleted || s.seen(i, pair.Key) {
				continue
			}

			if !yield(pair.Key) {
				return
			}
		}
	}
}

// Pairs returns an iterator over all the stored pairs.
func (s *Storage) Pairs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range s.pairs {
			if pair.deleted {
				continue
			}

			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Has indicates, whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Len returns a number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs) - s.deleted
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Clone creates a deep copy, which may be used later or stored somewhere safely. However,
// it comes at cost of an allocation.
func (s *Storage) Clone() *Storage {
	clone := NewPrealloc(s.Len())
	for key, value := range s.Pairs() {
		clone.Add(key, value)
	}

	return clone
}

// Clear all the entries. However, all the allocated space won't be freed.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	s.deleted = 0
	return s
}

// seen reports whether the key occurs among alive entries before the index.
func (s *Storage) seen(index int, key string) bool {
	for _, pair := range s.pairs[:index] {
		if !pair.deleted && strcomp.EqualFold(pair.Key, key) {
			return true
		}
	}

	return false
}
