package mips

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrFinalized is returned by a second call to Finalize.
var ErrFinalized = errors.New("mips: writer already finalized")

// Section selects one of the two output buffers.
type Section int

const (
	Data Section = iota
	Text
)

func (s Section) String() string {
	if s == Data {
		return ".data"
	}
	return ".text"
}

// Directive is a data-section storage directive.
type Directive string

const (
	Asciiz Directive = ".asciiz"
	Space  Directive = ".space"
	Word   Directive = ".word"
)

// Instruction mnemonics, grouped by the operand shape they take.
type (
	ArithOp    string
	ArithImmOp string
	MulDivOp   string
	MoveFromOp string
	LogicOp    string
	LogicImmOp string
	ShiftOp    string
	SetOp      string
	BranchOp   string
	JumpOp     string
	LoadOp     string
	StoreOp    string
)

const (
	Add  ArithOp = "add"
	Addu ArithOp = "addu"
	Sub  ArithOp = "sub"
	Subu ArithOp = "subu"

	Addi  ArithImmOp = "addi"
	Addiu ArithImmOp = "addiu"

	Mult MulDivOp = "mult"
	Div  MulDivOp = "div"

	Mfhi MoveFromOp = "mfhi"
	Mflo MoveFromOp = "mflo"

	And LogicOp = "and"
	Or  LogicOp = "or"
	Xor LogicOp = "xor"
	Nor LogicOp = "nor"

	Andi LogicImmOp = "andi"
	Ori  LogicImmOp = "ori"
	Xori LogicImmOp = "xori"

	Sll ShiftOp = "sll"
	Srl ShiftOp = "srl"
	Sra ShiftOp = "sra"

	Slt  SetOp = "slt"
	Sltu SetOp = "sltu"
	Seq  SetOp = "seq"
	Sne  SetOp = "sne"
	Sgt  SetOp = "sgt"
	Sge  SetOp = "sge"
	Sle  SetOp = "sle"

	Beq BranchOp = "beq"
	Bne BranchOp = "bne"

	J   JumpOp = "j"
	Jal JumpOp = "jal"

	Lb  LoadOp = "lb"
	Lbu LoadOp = "lbu"
	Lw  LoadOp = "lw"

	Sb StoreOp = "sb"
	Sw StoreOp = "sw"
)

type section struct {
	buf    strings.Builder
	indent string
}

// Writer buffers the data and text sections separately and writes them to
// the underlying sink in one go on Finalize. Output order within a section
// is exactly call order.
type Writer struct {
	out       io.Writer
	sections  [2]section
	finalized bool
}

// NewWriter returns a Writer that will flush to out. If out is also an
// io.Closer it is closed by Finalize.
func NewWriter(out io.Writer) *Writer {
	w := &Writer{out: out}
	w.sections[Data].indent = "\t"
	w.sections[Text].indent = "\t"
	return w
}

func (w *Writer) sec(s Section) *section {
	if w.finalized {
		panic("mips: emit after Finalize")
	}
	return &w.sections[s]
}

func (w *Writer) instr(mnemonic, operands, comment string) {
	t := w.sec(Text)
	t.buf.WriteString(t.indent)
	t.buf.WriteString(mnemonic)
	if operands != "" {
		t.buf.WriteByte(' ')
		t.buf.WriteString(operands)
	}
	t.buf.WriteString("\t# ")
	t.buf.WriteString(comment)
	t.buf.WriteByte('\n')
}

// Header writes the section directive (.data or .text) into its buffer.
func (w *Writer) Header(s Section) {
	b := &w.sec(s).buf
	b.WriteString(s.String())
	b.WriteByte('\n')
}

// Align emits .align n in the data section (2^n byte boundary).
func (w *Writer) Align(n int) {
	d := w.sec(Data)
	fmt.Fprintf(&d.buf, "%s.align %d\n", d.indent, n)
}

// Declare emits a labeled data declaration.
func (w *Writer) Declare(label string, dir Directive, payload string) {
	d := w.sec(Data)
	fmt.Fprintf(&d.buf, "%s: %s %s\n", label, dir, payload)
}

// DeclareString emits label: .asciiz "s".
func (w *Writer) DeclareString(label, s string) {
	w.Declare(label, Asciiz, `"`+Escape(s)+`"`)
}

// DeclareSpace reserves words zeroed words under label.
func (w *Writer) DeclareSpace(label string, words int) {
	w.Declare(label, Space, fmt.Sprint(words*4))
}

func (w *Writer) Arith(op ArithOp, rd, rs, rt Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%s", rd, rs, rt), comment)
}

func (w *Writer) ArithImm(op ArithImmOp, rt, rs Register, imm int, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%d", rt, rs, imm), comment)
}

func (w *Writer) MulDiv(op MulDivOp, rs, rt Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s", rs, rt), comment)
}

func (w *Writer) MoveFrom(op MoveFromOp, rd Register, comment string) {
	w.instr(string(op), rd.String(), comment)
}

func (w *Writer) Logic(op LogicOp, rd, rs, rt Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%s", rd, rs, rt), comment)
}

func (w *Writer) LogicImm(op LogicImmOp, rt, rs Register, imm int, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%d", rt, rs, imm), comment)
}

func (w *Writer) Shift(op ShiftOp, rd, rt Register, shamt int, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%d", rd, rt, shamt), comment)
}

func (w *Writer) Lui(rt Register, imm int, comment string) {
	w.instr("lui", fmt.Sprintf("%s,%d", rt, imm), comment)
}

// Set emits a compare pseudo-op leaving 1 or 0 in rd.
func (w *Writer) Set(op SetOp, rd, rs, rt Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%s", rd, rs, rt), comment)
}

func (w *Writer) Branch(op BranchOp, rs, rt Register, label, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%s,%s", rs, rt, label), comment)
}

// B emits an unconditional branch.
func (w *Writer) B(label, comment string) {
	w.instr("b", label, comment)
}

func (w *Writer) Jump(op JumpOp, label, comment string) {
	w.instr(string(op), label, comment)
}

func (w *Writer) JumpReg(rs Register, comment string) {
	w.instr("jr", rs.String(), comment)
}

func (w *Writer) Load(op LoadOp, rt Register, offset int, base Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%d(%s)", rt, offset, base), comment)
}

func (w *Writer) Store(op StoreOp, rt Register, offset int, base Register, comment string) {
	w.instr(string(op), fmt.Sprintf("%s,%d(%s)", rt, offset, base), comment)
}

func (w *Writer) Syscall(comment string) {
	w.instr("syscall", "", comment)
}

func (w *Writer) LoadAddress(rd Register, label, comment string) {
	w.instr("la", fmt.Sprintf("%s,%s", rd, label), comment)
}

func (w *Writer) Move(rd, rs Register, comment string) {
	w.instr("move", fmt.Sprintf("%s,%s", rd, rs), comment)
}

// Label emits name: at column zero of the text section.
func (w *Writer) Label(name string) {
	t := w.sec(Text)
	t.buf.WriteString(name)
	t.buf.WriteString(":\n")
}

// Comment emits an indented comment line in the text section.
func (w *Writer) Comment(format string, args ...any) {
	t := w.sec(Text)
	t.buf.WriteString(t.indent)
	t.buf.WriteString("# ")
	fmt.Fprintf(&t.buf, format, args...)
	t.buf.WriteByte('\n')
}

// Blank emits an empty line in the text section.
func (w *Writer) Blank() {
	w.sec(Text).buf.WriteByte('\n')
}

// Finalize writes the data section followed by the text section, flushes,
// and closes the sink if it is an io.Closer. It may be called once.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	bw := bufio.NewWriter(w.out)
	if _, err := bw.WriteString(w.sections[Data].buf.String()); err != nil {
		return err
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	if _, err := bw.WriteString(w.sections[Text].buf.String()); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if c, ok := w.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Escape renders s for use inside an .asciiz literal.
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape.
func Unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '0':
			b.WriteByte(0)
		default:
			return "", fmt.Errorf("unknown escape \\%c in %q", s[i], s)
		}
	}
	return b.String(), nil
}
