package codegen

import (
	"fmt"

	"minic/pkg/mips"
)

// RegisterAllocator hands out scratch registers from a fixed pool. There is
// no spilling: an empty pool is an error.
type RegisterAllocator struct {
	w    *mips.Writer
	pool []mips.Register
	free []mips.Register
}

// NewRegisterAllocator uses the first size registers of mips.Pool.
func NewRegisterAllocator(w *mips.Writer, size int) *RegisterAllocator {
	if size <= 0 || size > len(mips.Pool) {
		size = len(mips.Pool)
	}
	ra := &RegisterAllocator{w: w, pool: mips.Pool[:size:size]}
	ra.Reset()
	return ra
}

// Acquire pops a free register and clears it.
func (ra *RegisterAllocator) Acquire() (mips.Register, error) {
	if len(ra.free) == 0 {
		return mips.None, fmt.Errorf("%w: all %d registers live", ErrRegistersExhausted, len(ra.pool))
	}
	r := ra.free[len(ra.free)-1]
	ra.free = ra.free[:len(ra.free)-1]
	ra.w.ArithImm(mips.Addi, r, mips.Zero, 0, "clean register")
	return r, nil
}

// Release returns r to the pool. Registers outside the pool are ignored.
func (ra *RegisterAllocator) Release(r mips.Register) {
	if !ra.owns(r) {
		return
	}
	for _, f := range ra.free {
		if f == r {
			return
		}
	}
	ra.free = append(ra.free, r)
}

// Reset marks the whole pool free.
func (ra *RegisterAllocator) Reset() {
	ra.free = append(ra.free[:0], ra.pool...)
}

// Live is the number of acquired, unreleased registers.
func (ra *RegisterAllocator) Live() int {
	return len(ra.pool) - len(ra.free)
}

// Pool returns the registers this allocator manages.
func (ra *RegisterAllocator) Pool() []mips.Register {
	return ra.pool
}

func (ra *RegisterAllocator) owns(r mips.Register) bool {
	for _, p := range ra.pool {
		if p == r {
			return true
		}
	}
	return false
}
