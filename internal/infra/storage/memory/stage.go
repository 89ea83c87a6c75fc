package memory

import (
	"fmt"

	"staybook/internal/domain/shared/concurrency"
)

// stage holds one unit's uncommitted rows of a table. base remembers the committed version each row
// was read at (0 meaning it must still be absent) so Commit can detect lost updates.
type stage[K comparable, V any] struct {
	name    string
	version func(V) int64
	base    map[K]int64
	rows    map[K]V
	order   []K
}

func newStage[K comparable, V any](name string, version func(V) int64) *stage[K, V] {
	return &stage[K, V]{name: name, version: version, base: make(map[K]int64), rows: make(map[K]V)}
}

func (s *stage[K, V]) get(committed map[K]V, k K) (V, bool) {
	if v, ok := s.rows[k]; ok {
		return v, true
	}
	v, ok := committed[k]
	return v, ok
}

// put stages v, which must carry expect+1 as its version. Versioned tables reject a stale expect
// right away; Commit checks again under the write lock.
func (s *stage[K, V]) put(committed map[K]V, k K, v V, expect int64) error {
	if s.version != nil {
		current, ok := s.get(committed, k)
		switch {
		case !ok && expect != 0:
			return fmt.Errorf("%w: %s %v missing", concurrency.ErrConcurrentUpdate, s.name, k)
		case ok && s.version(current) != expect:
			return fmt.Errorf("%w: %s %v at version %d, have %d", concurrency.ErrConcurrentUpdate, s.name, k, s.version(current), expect)
		}
	}
	if _, staged := s.rows[k]; !staged {
		s.base[k] = expect
		s.order = append(s.order, k)
	}
	s.rows[k] = v
	return nil
}

func (s *stage[K, V]) verify(committed map[K]V) error {
	if s.version == nil {
		return nil
	}
	for _, k := range s.order {
		expect := s.base[k]
		current, ok := committed[k]
		if !ok && expect == 0 {
			continue
		}
		if !ok || s.version(current) != expect {
			return fmt.Errorf("%w: %s %v changed before commit", concurrency.ErrConcurrentUpdate, s.name, k)
		}
	}
	return nil
}

func (s *stage[K, V]) apply(committed map[K]V) {
	for _, k := range s.order {
		committed[k] = s.rows[k]
	}
}

// merged returns committed rows overlaid with staged ones.
func (s *stage[K, V]) merged(committed map[K]V, keep func(V) bool) []V {
	out := make([]V, 0)
	for k, v := range committed {
		if _, staged := s.rows[k]; staged {
			continue
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	for _, k := range s.order {
		if v := s.rows[k]; keep(v) {
			out = append(out, v)
		}
	}
	return out
}
