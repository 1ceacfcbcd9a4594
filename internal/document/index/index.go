// Package index provides a secondary index over a multi-valued attribute:
// each index key maps to the set of primary keys whose attribute contains it.
// Backends without native multikey indexes maintain the same mapping in
// auxiliary keys.
package index

import "sort"

// SecondaryIndex is not safe for concurrent use; callers hold their own lock.
type SecondaryIndex struct {
	entries map[string]map[string]struct{}
}

func New() *SecondaryIndex {
	return &SecondaryIndex{entries: make(map[string]map[string]struct{})}
}

// Add records that primary key pk carries every key in keys.
func (s *SecondaryIndex) Add(pk string, keys []string) {
	for _, k := range keys {
		set, ok := s.entries[k]
		if !ok {
			set = make(map[string]struct{})
			s.entries[k] = set
		}
		set[pk] = struct{}{}
	}
}

// Remove drops pk from every key in keys.
func (s *SecondaryIndex) Remove(pk string, keys []string) {
	for _, k := range keys {
		set, ok := s.entries[k]
		if !ok {
			continue
		}
		delete(set, pk)
		if len(set) == 0 {
			delete(s.entries, k)
		}
	}
}

// Replace moves pk from oldKeys to newKeys.
func (s *SecondaryIndex) Replace(pk string, oldKeys, newKeys []string) {
	s.Remove(pk, oldKeys)
	s.Add(pk, newKeys)
}

// Lookup returns up to limit primary keys for key in sorted order.
// limit <= 0 means no limit.
func (s *SecondaryIndex) Lookup(key string, limit int) []string {
	set := s.entries[key]
	out := make([]string, 0, len(set))
	for pk := range set {
		out = append(out, pk)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *SecondaryIndex) Has(key string) bool {
	return len(s.entries[key]) > 0
}

// Diff returns the keys only in a and the keys only in b.
func Diff(a, b []string) (onlyA, onlyB []string) {
	inA := make(map[string]struct{}, len(a))
	for _, k := range a {
		inA[k] = struct{}{}
	}
	inB := make(map[string]struct{}, len(b))
	for _, k := range b {
		inB[k] = struct{}{}
		if _, ok := inA[k]; !ok {
			onlyB = append(onlyB, k)
		}
	}
	for _, k := range a {
		if _, ok := inB[k]; !ok {
			onlyA = append(onlyA, k)
		}
	}
	return onlyA, onlyB
}
