// Package mips renders MIPS32 assembly text in the MARS/SPIM dialect.
package mips

import (
	"fmt"
	"strconv"
	"strings"
)

// Register is a MIPS general purpose register, numbered as in hardware.
type Register int

// None marks the absence of a register, e.g. no dynamic offset.
const None Register = -1

const (
	Zero Register = iota
	AT
	V0
	V1
	A0
	A1
	A2
	A3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	T8
	T9
	K0
	K1
	GP
	SP
	FP
	RA
)

// NumRegisters is the size of the register file.
const NumRegisters = 32

// Registers reserved for frame save/restore address arithmetic. They are
// never handed out by the allocator.
const (
	TempFP   = S4 // caller's frame pointer while a prologue runs
	TempSP   = S5 // caller's stack pointer while a prologue runs
	TempVal1 = S6 // address of a register dump being restored
	TempVal2 = S7 // address of a register dump being saved
)

var names = [NumRegisters]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Pool is the scratch bank handed out by the register allocator. The
// allocator pops from the end.
var Pool = []Register{T0, T1, T2, T3, T4, T5, T6, T7, S0, S1, S2, S3, T8, T9}

// ArgRegs is the argument staging bank. Arguments travel on the stack; these
// only stage syscall operands.
var ArgRegs = []Register{A0, A1, A2, A3}

func (r Register) String() string {
	if r >= 0 && r < NumRegisters {
		return "$" + names[r]
	}
	return fmt.Sprintf("$?%d", int(r))
}

// IsPool reports whether r belongs to the scratch pool.
func (r Register) IsPool() bool {
	for _, p := range Pool {
		if p == r {
			return true
		}
	}
	return false
}

// ParseRegister accepts $name or $number.
func ParseRegister(s string) (Register, error) {
	if !strings.HasPrefix(s, "$") {
		return None, fmt.Errorf("invalid register %q", s)
	}
	body := s[1:]
	if n, err := strconv.Atoi(body); err == nil {
		if n < 0 || n >= NumRegisters {
			return None, fmt.Errorf("register %q out of range", s)
		}
		return Register(n), nil
	}
	if body == "s8" {
		return FP, nil
	}
	for i, name := range names {
		if name == body {
			return Register(i), nil
		}
	}
	return None, fmt.Errorf("invalid register %q", s)
}
