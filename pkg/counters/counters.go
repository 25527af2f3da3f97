// Package counters holds the per-kernel device counters and the process totals.
package counters

import (
	"fmt"
	"sync/atomic"
)

// Category names one of the four instruction counters.
type Category int

const (
	Generic Category = iota
	Indirect
	Shuffle
	Ballot

	NumCategories
)

var categoryNames = [NumCategories]string{"generic", "indirect", "shuffle", "ballot"}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Values is a snapshot of the four instruction counters.
type Values [NumCategories]uint64

// Handle is the device-side address of one kernel counter. The core only
// passes handles to probes; probes are the only writers.
type Handle struct {
	addr uint64
	v    *atomic.Uint64
}

// Address returns the device address the probe targets.
func (h Handle) Address() uint64 { return h.addr }

// Add is executed by the probe routine on the device.
func (h Handle) Add(n uint64) { h.v.Add(n) }

// Kernel is the device-resident counter set of the launch currently in
// flight. It is owned by whoever holds the launch lock.
type Kernel struct {
	base  uint64
	slots [NumCategories]atomic.Uint64
}

// NewKernel allocates a counter set whose handles start at base.
func NewKernel(base uint64) *Kernel {
	return &Kernel{base: base}
}

// Handle returns the counter handle for c.
func (k *Kernel) Handle(c Category) Handle {
	return Handle{addr: k.base + uint64(c)*8, v: &k.slots[c]}
}

// Reset zeroes all four counters.
func (k *Kernel) Reset() {
	for i := range k.slots {
		k.slots[i].Store(0)
	}
}

// Read returns the current counter values.
func (k *Kernel) Read() Values {
	var v Values
	for i := range k.slots {
		v[i] = k.slots[i].Load()
	}
	return v
}

// Totals accumulates kernel counts across the process lifetime.
type Totals struct {
	Instructions uint64
	Indirect     uint64
	Shuffle      uint64
	Ballot       uint64
	Cooperative  uint64
}

// Fold adds one kernel's counts.
func (t *Totals) Fold(v Values) {
	t.Instructions += v[Generic]
	t.Indirect += v[Indirect]
	t.Shuffle += v[Shuffle]
	t.Ballot += v[Ballot]
}
