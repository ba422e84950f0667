package sim

import (
	"fmt"

	"github.com/rsa-sim/rsa-sim/sim/topology"
)

// Spectrum is the per-link slot occupancy owned by one Environment.
// Policies receive it read-only through Observation; only the Environment
// mutates it.
type Spectrum struct {
	slots [][]bool // slots[link][slot] == true means occupied
	used  int
	total int
}

func newSpectrum(topo *topology.Topology) *Spectrum {
	s := &Spectrum{slots: make([][]bool, topo.LinkCount())}
	for id := range s.slots {
		n := topo.LinkSlotCapacity(id)
		s.slots[id] = make([]bool, n)
		s.total += n
	}
	return s
}

// LinkCount returns the number of links tracked.
func (s *Spectrum) LinkCount() int {
	return len(s.slots)
}

// Capacity returns the number of slots on link. Returns 0 for unknown links.
func (s *Spectrum) Capacity(link int) int {
	if link < 0 || link >= len(s.slots) {
		return 0
	}
	return len(s.slots[link])
}

// Occupied reports whether slot on link is in use.
// Out-of-range coordinates report false.
func (s *Spectrum) Occupied(link, slot int) bool {
	if link < 0 || link >= len(s.slots) || slot < 0 || slot >= len(s.slots[link]) {
		return false
	}
	return s.slots[link][slot]
}

// IsFree reports whether [start, start+width) is in range and unoccupied
// on every link in links.
func (s *Spectrum) IsFree(links []int, start, width int) bool {
	if len(links) == 0 || width < 1 || start < 0 {
		return false
	}
	for _, l := range links {
		if l < 0 || l >= len(s.slots) || start+width > len(s.slots[l]) {
			return false
		}
		for slot := start; slot < start+width; slot++ {
			if s.slots[l][slot] {
				return false
			}
		}
	}
	return true
}

// CommonFree returns, for each slot index, whether it is free on every link
// in links. Its length is the smallest capacity among the links.
func (s *Spectrum) CommonFree(links []int) []bool {
	if len(links) == 0 {
		return nil
	}
	n := -1
	for _, l := range links {
		c := s.Capacity(l)
		if n < 0 || c < n {
			n = c
		}
	}
	free := make([]bool, n)
	for i := range free {
		free[i] = true
		for _, l := range links {
			if s.slots[l][i] {
				free[i] = false
				break
			}
		}
	}
	return free
}

// UsedSlots returns the number of occupied slots over all links.
func (s *Spectrum) UsedSlots() int {
	return s.used
}

// TotalSlots returns the number of slots over all links.
func (s *Spectrum) TotalSlots() int {
	return s.total
}

// Utilization returns the fraction of occupied slots over all links.
func (s *Spectrum) Utilization() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.used) / float64(s.total)
}

// occupy marks the range on every link. The caller has already checked IsFree.
func (s *Spectrum) occupy(links []int, start, width int) {
	for _, l := range links {
		for slot := start; slot < start+width; slot++ {
			if s.slots[l][slot] {
				panic(fmt.Sprintf("spectrum: slot %d on link %d already occupied", slot, l))
			}
			s.slots[l][slot] = true
		}
	}
	s.used += len(links) * width
}

// release frees the range on every link. Releasing a free slot means the
// occupancy and the connection set disagree, which is a simulator bug.
func (s *Spectrum) release(links []int, start, width int) {
	for _, l := range links {
		for slot := start; slot < start+width; slot++ {
			if !s.slots[l][slot] {
				panic(fmt.Sprintf("spectrum: releasing free slot %d on link %d", slot, l))
			}
			s.slots[l][slot] = false
		}
	}
	s.used -= len(links) * width
}

func (s *Spectrum) clear() {
	for _, row := range s.slots {
		clear(row)
	}
	s.used = 0
}
