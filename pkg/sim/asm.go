// Package sim assembles and executes the MIPS subset emitted by the code
// generator, with MARS-compatible memory layout and syscalls.
package sim

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"minic/pkg/mips"
)

// Memory layout, as in MARS' default configuration.
const (
	TextBase  uint32 = 0x00400000
	DataBase  uint32 = 0x10010000
	HeapBase  uint32 = 0x10040000
	GlobalPtr uint32 = 0x10008000
	StackTop  uint32 = 0x7fffeffc
)

// Instr is one decoded instruction. Which fields are meaningful depends on
// the mnemonic's operand shape.
type Instr struct {
	Op     string
	Rd     mips.Register
	Rs     mips.Register
	Rt     mips.Register
	Imm    int32
	Target uint32
	Line   int
}

func (in Instr) String() string {
	switch shapes[in.Op] {
	case shapeRRR:
		return fmt.Sprintf("%s %s,%s,%s", in.Op, in.Rd, in.Rs, in.Rt)
	case shapeRRI, shapeRRU:
		return fmt.Sprintf("%s %s,%s,%d", in.Op, in.Rt, in.Rs, in.Imm)
	case shapeShift:
		return fmt.Sprintf("%s %s,%s,%d", in.Op, in.Rd, in.Rt, in.Imm)
	case shapeRR:
		return fmt.Sprintf("%s %s,%s", in.Op, in.Rs, in.Rt)
	case shapeMove:
		return fmt.Sprintf("%s %s,%s", in.Op, in.Rd, in.Rs)
	case shapeRd:
		return fmt.Sprintf("%s %s", in.Op, in.Rd)
	case shapeRs:
		return fmt.Sprintf("%s %s", in.Op, in.Rs)
	case shapeRI:
		return fmt.Sprintf("%s %s,%d", in.Op, in.Rt, in.Imm)
	case shapeRL:
		return fmt.Sprintf("%s %s,0x%08x", in.Op, in.Rd, in.Target)
	case shapeRRL:
		return fmt.Sprintf("%s %s,%s,0x%08x", in.Op, in.Rs, in.Rt, in.Target)
	case shapeL:
		return fmt.Sprintf("%s 0x%08x", in.Op, in.Target)
	case shapeMem:
		return fmt.Sprintf("%s %s,%d(%s)", in.Op, in.Rt, in.Imm, in.Rs)
	}
	return in.Op
}

// Program is an assembled image.
type Program struct {
	Text   []Instr
	Data   []byte // loaded at DataBase
	Labels map[string]uint32
}

type shape int

const (
	shapeNone  shape = iota // syscall
	shapeRRR                // rd, rs, rt
	shapeRRI                // rt, rs, imm
	shapeRRU                // rt, rs, unsigned imm
	shapeShift              // rd, rt, shamt
	shapeRR                 // rs, rt
	shapeMove               // rd, rs
	shapeRd                 // rd
	shapeRs                 // rs
	shapeRI                 // rt, imm
	shapeRL                 // rd, label
	shapeRRL                // rs, rt, label
	shapeL                  // label
	shapeMem                // rt, offset(base)
)

var shapes = map[string]shape{
	"syscall": shapeNone, "nop": shapeNone,

	"add": shapeRRR, "addu": shapeRRR, "sub": shapeRRR, "subu": shapeRRR,
	"and": shapeRRR, "or": shapeRRR, "xor": shapeRRR, "nor": shapeRRR,
	"slt": shapeRRR, "sltu": shapeRRR, "seq": shapeRRR, "sne": shapeRRR,
	"sgt": shapeRRR, "sge": shapeRRR, "sle": shapeRRR,

	"addi": shapeRRI, "addiu": shapeRRI, "slti": shapeRRI, "sltiu": shapeRRI,
	"andi": shapeRRU, "ori": shapeRRU, "xori": shapeRRU,

	"sll": shapeShift, "srl": shapeShift, "sra": shapeShift,

	"mult": shapeRR, "div": shapeRR,
	"move": shapeMove,
	"mfhi": shapeRd, "mflo": shapeRd,
	"jr": shapeRs, "jalr": shapeRs,
	"lui": shapeRI, "li": shapeRI,
	"la": shapeRL,
	"beq": shapeRRL, "bne": shapeRRL,
	"b": shapeL, "j": shapeL, "jal": shapeL,
	"lb": shapeMem, "lbu": shapeMem, "lw": shapeMem, "sb": shapeMem, "sw": shapeMem,
}

var operandCount = map[shape]int{
	shapeNone: 0, shapeRRR: 3, shapeRRI: 3, shapeRRU: 3, shapeShift: 3,
	shapeRR: 2, shapeMove: 2, shapeRd: 1, shapeRs: 1, shapeRI: 2,
	shapeRL: 2, shapeRRL: 3, shapeL: 1, shapeMem: 2,
}

type section int

const (
	secText section = iota
	secData
)

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

// Assembler turns assembly source into a Program in two passes: the first
// lays out both sections and records labels, the second decodes.
type Assembler struct {
	labels map[string]uint32
}

func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]uint32)}
}

func Assemble(src string) (*Program, error) {
	return NewAssembler().Assemble(src)
}

func (a *Assembler) Assemble(src string) (*Program, error) {
	var lines []parsedLine
	for i, raw := range strings.Split(src, "\n") {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		lines = append(lines, p)
	}

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []parsedLine) error {
	sec := secText
	dataAddr := DataBase
	textAddr := TextBase

	for _, p := range lines {
		switch p.mnemonic {
		case ".data":
			sec = secData
		case ".text":
			sec = secText
		case ".word":
			dataAddr = alignUp(dataAddr, 4)
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			if sec == secData {
				a.labels[lbl] = dataAddr
			} else {
				a.labels[lbl] = textAddr
			}
		}

		if p.mnemonic == "" || p.mnemonic == ".data" || p.mnemonic == ".text" || p.mnemonic == ".globl" {
			continue
		}

		if strings.HasPrefix(p.mnemonic, ".") {
			if sec != secData {
				return fmt.Errorf("directive %s outside .data on line %d", p.mnemonic, p.lineNo)
			}
			size, err := directiveSize(p, dataAddr)
			if err != nil {
				return err
			}
			dataAddr += size
			continue
		}

		if sec != secText {
			return fmt.Errorf("instruction %s outside .text on line %d", p.mnemonic, p.lineNo)
		}
		if _, ok := shapes[p.mnemonic]; !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
		}
		textAddr += 4
	}
	return nil
}

// directiveSize is the number of bytes a data directive advances the
// location counter by, including alignment padding.
func directiveSize(p parsedLine, addr uint32) (uint32, error) {
	switch p.mnemonic {
	case ".align":
		n, err := singleInt(p)
		if err != nil {
			return 0, err
		}
		if n < 0 || n > 16 {
			return 0, fmt.Errorf(".align out of range on line %d", p.lineNo)
		}
		return alignUp(addr, 1<<n) - addr, nil
	case ".space":
		n, err := singleInt(p)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf(".space must not be negative on line %d", p.lineNo)
		}
		return uint32(n), nil
	case ".asciiz":
		if len(p.operands) != 1 {
			return 0, fmt.Errorf(".asciiz expects exactly one string operand on line %d", p.lineNo)
		}
		return uint32(len(p.operands[0]) + 1), nil
	case ".word":
		return uint32(4 * len(p.operands)), nil
	case ".byte":
		return uint32(len(p.operands)), nil
	}
	return 0, fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.mnemonic)
}

func singleInt(p parsedLine) (int64, error) {
	if len(p.operands) != 1 {
		return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
	}
	n, err := strconv.ParseInt(p.operands[0], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
	}
	return n, nil
}

func (a *Assembler) pass2(lines []parsedLine) (*Program, error) {
	prog := &Program{Labels: a.labels}
	sec := secText

	for _, p := range lines {
		switch p.mnemonic {
		case "", ".globl":
			continue
		case ".data":
			sec = secData
			continue
		case ".text":
			sec = secText
			continue
		}

		if sec == secData {
			if err := a.emitData(prog, p); err != nil {
				return nil, err
			}
			continue
		}

		in, err := a.decode(p)
		if err != nil {
			return nil, err
		}
		prog.Text = append(prog.Text, in)
	}
	return prog, nil
}

func (a *Assembler) emitData(prog *Program, p parsedLine) error {
	addr := DataBase + uint32(len(prog.Data))
	switch p.mnemonic {
	case ".asciiz":
		prog.Data = append(prog.Data, p.operands[0]...)
		prog.Data = append(prog.Data, 0)
	case ".word":
		for pad := alignUp(addr, 4) - addr; pad > 0; pad-- {
			prog.Data = append(prog.Data, 0)
		}
		for _, op := range p.operands {
			v, err := a.parseValue(op, p.lineNo)
			if err != nil {
				return err
			}
			u := uint32(v)
			prog.Data = append(prog.Data, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
		}
	case ".byte":
		for _, op := range p.operands {
			v, err := a.parseValue(op, p.lineNo)
			if err != nil {
				return err
			}
			prog.Data = append(prog.Data, byte(v))
		}
	default:
		size, err := directiveSize(p, addr)
		if err != nil {
			return err
		}
		prog.Data = append(prog.Data, make([]byte, size)...)
	}
	return nil
}

func (a *Assembler) decode(p parsedLine) (Instr, error) {
	in := Instr{Op: p.mnemonic, Rd: mips.None, Rs: mips.None, Rt: mips.None, Line: p.lineNo}
	sh := shapes[p.mnemonic]
	ops := p.operands
	if len(ops) != operandCount[sh] {
		return in, fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, operandCount[sh], p.lineNo)
	}

	regs := func(dst ...*mips.Register) error {
		for i, d := range dst {
			r, err := mips.ParseRegister(ops[i])
			if err != nil {
				return fmt.Errorf("line %d: %w", p.lineNo, err)
			}
			*d = r
		}
		return nil
	}

	var err error
	switch sh {
	case shapeRRR:
		err = regs(&in.Rd, &in.Rs, &in.Rt)
	case shapeRRI, shapeRRU:
		if err = regs(&in.Rt, &in.Rs); err == nil {
			lo, hi := int64(-0x8000), int64(0x7fff)
			if sh == shapeRRU {
				lo, hi = 0, 0xffff
			}
			in.Imm, err = parseImmediate(ops[2], lo, hi, p.lineNo)
		}
	case shapeShift:
		if err = regs(&in.Rd, &in.Rt); err == nil {
			in.Imm, err = parseImmediate(ops[2], 0, 31, p.lineNo)
		}
	case shapeRR:
		err = regs(&in.Rs, &in.Rt)
	case shapeMove:
		err = regs(&in.Rd, &in.Rs)
	case shapeRd:
		err = regs(&in.Rd)
	case shapeRs:
		err = regs(&in.Rs)
	case shapeRI:
		if err = regs(&in.Rt); err == nil {
			lo, hi := int64(0), int64(0xffff)
			if p.mnemonic == "li" {
				lo, hi = -1<<31, 1<<32-1
			}
			in.Imm, err = parseImmediate(ops[1], lo, hi, p.lineNo)
		}
	case shapeRL:
		if err = regs(&in.Rd); err == nil {
			in.Target, err = a.resolve(ops[1], p.lineNo)
		}
	case shapeRRL:
		if err = regs(&in.Rs, &in.Rt); err == nil {
			in.Target, err = a.resolve(ops[2], p.lineNo)
		}
	case shapeL:
		in.Target, err = a.resolve(ops[0], p.lineNo)
	case shapeMem:
		if err = regs(&in.Rt); err == nil {
			in.Imm, in.Rs, err = parseMemOperand(ops[1], p.lineNo)
		}
	}
	return in, err
}

func (a *Assembler) resolve(label string, lineNo int) (uint32, error) {
	if addr, ok := a.labels[label]; ok {
		return addr, nil
	}
	if isLabel(label) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", label, lineNo)
	}
	return 0, fmt.Errorf("invalid label '%s' on line %d", label, lineNo)
}

func (a *Assembler) parseValue(token string, lineNo int) (int64, error) {
	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return v, nil
	}
	addr, err := a.resolve(token, lineNo)
	return int64(addr), err
}

func parseImmediate(token string, lo, hi int64, lineNo int) (int32, error) {
	v, err := strconv.ParseInt(token, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
	}
	return int32(v), nil
}

// parseMemOperand splits offset(base); the offset may be omitted.
func parseMemOperand(token string, lineNo int) (int32, mips.Register, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 || !strings.HasSuffix(token, ")") {
		return 0, mips.None, fmt.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}
	base, err := mips.ParseRegister(token[open+1 : len(token)-1])
	if err != nil {
		return 0, mips.None, fmt.Errorf("line %d: %w", lineNo, err)
	}
	var off int32
	if open > 0 {
		if off, err = parseImmediate(token[:open], -0x8000, 0x7fff, lineNo); err != nil {
			return 0, mips.None, err
		}
	}
	return off, base, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	for line != "" {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		before := line[:colon]
		if strings.ContainsAny(before, " \t\"") {
			break
		}
		if !isLabel(before) {
			return p, fmt.Errorf("invalid label '%s' on line %d", before, lineNo)
		}
		p.labels = append(p.labels, before)
		line = strings.TrimSpace(line[colon+1:])
	}
	if line == "" {
		return p, nil
	}

	fields := strings.Fields(line)
	p.mnemonic = strings.ToLower(fields[0])
	rest := strings.TrimSpace(line[len(fields[0]):])

	if p.mnemonic == ".asciiz" {
		if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
			return p, fmt.Errorf("invalid string literal on line %d", lineNo)
		}
		s, err := mips.Unescape(rest[1 : len(rest)-1])
		if err != nil {
			return p, fmt.Errorf("line %d: %w", lineNo, err)
		}
		p.operands = []string{s}
		return p, nil
	}

	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			p.operands = append(p.operands, strings.TrimSpace(op))
		}
	}
	return p, nil
}

// stripComments cuts at the first # that is not inside a string literal.
func stripComments(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

func alignUp(addr, n uint32) uint32 {
	return (addr + n - 1) &^ (n - 1)
}
