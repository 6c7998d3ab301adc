package farm

import "sort"

// Inventory maps resource id to a positive quantity. Zero entries are removed.
type Inventory map[string]int

func (inv Inventory) Count(id string) int { return inv[id] }

func (inv Inventory) Total() int {
	n := 0
	for _, q := range inv {
		n += q
	}
	return n
}

func (inv Inventory) Add(id string, n int) {
	if n <= 0 {
		return
	}
	inv[id] += n
}

// Remove takes n units of id; it reports false and changes nothing when short.
func (inv Inventory) Remove(id string, n int) bool {
	if n < 0 || inv[id] < n {
		return false
	}
	if inv[id] == n {
		delete(inv, id)
		return true
	}
	inv[id] -= n
	return true
}

// HasAll reports whether every quantity in need is available.
func (inv Inventory) HasAll(need map[string]int) bool {
	for id, n := range need {
		if inv[id] < n {
			return false
		}
	}
	return true
}

// IDs returns the held resource ids in sorted order.
func (inv Inventory) IDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for id, q := range inv {
		out[id] = q
	}
	return out
}
