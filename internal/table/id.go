package table

import "fmt"

// allocateID returns the smallest id below the table capacity that no live
// entry uses. Must be called with t.mu held.
func (t *Table) allocateID() (ID, error) {
	for id := ID(0); int(id) < t.capacity; id++ {
		if _, taken := t.slots[id]; !taken {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no free id below %d", ErrCapacityExceeded, t.capacity)
}
