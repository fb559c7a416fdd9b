package sim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"minic/pkg/mips"
)

var (
	ErrFault     = errors.New("sim: fault")
	ErrStepLimit = errors.New("sim: step limit exceeded")
)

// DefaultMaxSteps bounds Run when Config.MaxSteps is zero.
const DefaultMaxSteps = 1_000_000

// maxString caps how far print string will scan for a terminator.
const maxString = 1 << 20

type CPU struct {
	Regs [mips.NumRegisters]int32
	HI   int32
	LO   int32
	PC   uint32

	Halted   bool
	ExitCode int
	Steps    int

	// Output receives syscall output. If nil, output is discarded.
	Output io.Writer
	// Input feeds the read syscalls. If nil, reads see end of input.
	Input *bufio.Reader

	prog *Program
	mem  map[uint32]byte
	brk  uint32
}

// NewCPU loads prog with $sp, $gp and the program counter set up as MARS
// does.
func NewCPU(prog *Program) *CPU {
	c := &CPU{
		PC:   TextBase,
		prog: prog,
		mem:  make(map[uint32]byte),
		brk:  max(HeapBase, alignUp(DataBase+uint32(len(prog.Data)), 8)),
	}
	for i, b := range prog.Data {
		if b != 0 {
			c.mem[DataBase+uint32(i)] = b
		}
	}
	c.Regs[mips.SP] = int32(StackTop)
	c.Regs[mips.GP] = int32(GlobalPtr)
	return c
}

func (c *CPU) fault(format string, args ...any) error {
	c.Halted = true
	return fmt.Errorf("%w: %s (pc 0x%08x)", ErrFault, fmt.Sprintf(format, args...), c.PC)
}

func (c *CPU) set(r mips.Register, v int32) {
	if r != mips.Zero {
		c.Regs[r] = v
	}
}

func (c *CPU) ReadByte(addr uint32) byte {
	return c.mem[addr]
}

func (c *CPU) WriteByte(addr uint32, v byte) {
	c.mem[addr] = v
}

func (c *CPU) ReadWord(addr uint32) (int32, error) {
	if addr%4 != 0 {
		return 0, c.fault("unaligned word read at 0x%08x", addr)
	}
	u := uint32(c.mem[addr]) | uint32(c.mem[addr+1])<<8 | uint32(c.mem[addr+2])<<16 | uint32(c.mem[addr+3])<<24
	return int32(u), nil
}

func (c *CPU) WriteWord(addr uint32, v int32) error {
	if addr%4 != 0 {
		return c.fault("unaligned word write at 0x%08x", addr)
	}
	u := uint32(v)
	c.mem[addr] = byte(u)
	c.mem[addr+1] = byte(u >> 8)
	c.mem[addr+2] = byte(u >> 16)
	c.mem[addr+3] = byte(u >> 24)
	return nil
}

// ReadString reads a null-terminated string starting at addr.
func (c *CPU) ReadString(addr uint32) (string, error) {
	var sb strings.Builder
	for i := uint32(0); i < maxString; i++ {
		b := c.mem[addr+i]
		if b == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
	return "", c.fault("unterminated string at 0x%08x", addr)
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Step executes one instruction. Falling off the end of the text segment
// halts, as in MARS.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC < TextBase || c.PC%4 != 0 {
		return c.fault("jump outside text segment")
	}
	idx := (c.PC - TextBase) / 4
	if idx == uint32(len(c.prog.Text)) {
		c.Halted = true
		return nil
	}
	if idx > uint32(len(c.prog.Text)) {
		return c.fault("jump outside text segment")
	}

	in := &c.prog.Text[idx]
	r := &c.Regs
	next := c.PC + 4
	c.Steps++

	switch in.Op {
	case "add", "addu":
		c.set(in.Rd, r[in.Rs]+r[in.Rt])
	case "sub", "subu":
		c.set(in.Rd, r[in.Rs]-r[in.Rt])
	case "addi", "addiu":
		c.set(in.Rt, r[in.Rs]+in.Imm)
	case "and":
		c.set(in.Rd, r[in.Rs]&r[in.Rt])
	case "or":
		c.set(in.Rd, r[in.Rs]|r[in.Rt])
	case "xor":
		c.set(in.Rd, r[in.Rs]^r[in.Rt])
	case "nor":
		c.set(in.Rd, ^(r[in.Rs] | r[in.Rt]))
	case "andi":
		c.set(in.Rt, r[in.Rs]&in.Imm)
	case "ori":
		c.set(in.Rt, r[in.Rs]|in.Imm)
	case "xori":
		c.set(in.Rt, r[in.Rs]^in.Imm)
	case "sll":
		c.set(in.Rd, int32(uint32(r[in.Rt])<<uint(in.Imm)))
	case "srl":
		c.set(in.Rd, int32(uint32(r[in.Rt])>>uint(in.Imm)))
	case "sra":
		c.set(in.Rd, r[in.Rt]>>uint(in.Imm))
	case "lui":
		c.set(in.Rt, in.Imm<<16)
	case "li":
		c.set(in.Rt, in.Imm)
	case "slt":
		c.set(in.Rd, b2i(r[in.Rs] < r[in.Rt]))
	case "sltu":
		c.set(in.Rd, b2i(uint32(r[in.Rs]) < uint32(r[in.Rt])))
	case "slti":
		c.set(in.Rt, b2i(r[in.Rs] < in.Imm))
	case "sltiu":
		c.set(in.Rt, b2i(uint32(r[in.Rs]) < uint32(in.Imm)))
	case "seq":
		c.set(in.Rd, b2i(r[in.Rs] == r[in.Rt]))
	case "sne":
		c.set(in.Rd, b2i(r[in.Rs] != r[in.Rt]))
	case "sgt":
		c.set(in.Rd, b2i(r[in.Rs] > r[in.Rt]))
	case "sge":
		c.set(in.Rd, b2i(r[in.Rs] >= r[in.Rt]))
	case "sle":
		c.set(in.Rd, b2i(r[in.Rs] <= r[in.Rt]))
	case "mult":
		p := int64(r[in.Rs]) * int64(r[in.Rt])
		c.LO, c.HI = int32(p), int32(p>>32)
	case "div":
		// division by zero leaves HI and LO unchanged
		if d := r[in.Rt]; d != 0 {
			c.LO, c.HI = r[in.Rs]/d, r[in.Rs]%d
		}
	case "mfhi":
		c.set(in.Rd, c.HI)
	case "mflo":
		c.set(in.Rd, c.LO)
	case "move":
		c.set(in.Rd, r[in.Rs])
	case "beq":
		if r[in.Rs] == r[in.Rt] {
			next = in.Target
		}
	case "bne":
		if r[in.Rs] != r[in.Rt] {
			next = in.Target
		}
	case "b", "j":
		next = in.Target
	case "jal":
		c.set(mips.RA, int32(c.PC+4))
		next = in.Target
	case "jr":
		next = uint32(r[in.Rs])
	case "jalr":
		target := uint32(r[in.Rs])
		c.set(mips.RA, int32(c.PC+4))
		next = target
	case "la":
		c.set(in.Rd, int32(in.Target))
	case "lw":
		v, err := c.ReadWord(uint32(r[in.Rs] + in.Imm))
		if err != nil {
			return err
		}
		c.set(in.Rt, v)
	case "lb":
		c.set(in.Rt, int32(int8(c.ReadByte(uint32(r[in.Rs]+in.Imm)))))
	case "lbu":
		c.set(in.Rt, int32(c.ReadByte(uint32(r[in.Rs]+in.Imm))))
	case "sw":
		if err := c.WriteWord(uint32(r[in.Rs]+in.Imm), r[in.Rt]); err != nil {
			return err
		}
	case "sb":
		c.WriteByte(uint32(r[in.Rs]+in.Imm), byte(r[in.Rt]))
	case "syscall":
		if err := c.syscall(); err != nil {
			return err
		}
	case "nop":
	default:
		return c.fault("unknown instruction %s", in.Op)
	}

	if !c.Halted {
		c.PC = next
	}
	return nil
}

// Next returns the instruction at PC without executing it.
func (c *CPU) Next() (Instr, bool) {
	if c.Halted || c.PC < TextBase {
		return Instr{}, false
	}
	idx := (c.PC - TextBase) / 4
	if idx >= uint32(len(c.prog.Text)) {
		return Instr{}, false
	}
	return c.prog.Text[idx], true
}

// ReadsInput reports whether the next instruction is a read syscall. Hosts
// that feed input interactively hold the CPU here until input is queued.
func (c *CPU) ReadsInput() bool {
	in, ok := c.Next()
	if !ok || in.Op != "syscall" {
		return false
	}
	v := c.Regs[mips.V0]
	return v == 5 || v == 12
}

// Program returns the loaded image.
func (c *CPU) Program() *Program {
	return c.prog
}

func (c *CPU) out() io.Writer {
	if c.Output == nil {
		return io.Discard
	}
	return c.Output
}

func (c *CPU) syscall() error {
	a0 := c.Regs[mips.A0]
	switch code := c.Regs[mips.V0]; code {
	case 1:
		fmt.Fprint(c.out(), a0)
	case 4:
		s, err := c.ReadString(uint32(a0))
		if err != nil {
			return err
		}
		io.WriteString(c.out(), s)
	case 5:
		c.Regs[mips.V0] = c.readInt()
	case 9:
		addr := c.brk
		c.brk = alignUp(c.brk+uint32(a0), 4)
		c.Regs[mips.V0] = int32(addr)
	case 10:
		c.Halted = true
		c.ExitCode = 0
	case 11:
		c.out().Write([]byte{byte(a0)})
	case 12:
		c.Regs[mips.V0] = 0
		if c.Input != nil {
			if b, err := c.Input.ReadByte(); err == nil {
				c.Regs[mips.V0] = int32(b)
			}
		}
	case 17:
		c.Halted = true
		c.ExitCode = int(a0)
	default:
		return c.fault("unknown syscall %d", code)
	}
	return nil
}

// readInt reads one line and parses it; anything unparsable reads as 0.
func (c *CPU) readInt() int32 {
	if c.Input == nil {
		return 0
	}
	line, _ := c.Input.ReadString('\n')
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

// Run steps until the program halts or maxSteps instructions have run.
func (c *CPU) Run(maxSteps int) error {
	for !c.Halted {
		if c.Steps >= maxSteps {
			return fmt.Errorf("%w: %d steps (pc 0x%08x)", ErrStepLimit, maxSteps, c.PC)
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Config controls a Run.
type Config struct {
	MaxSteps int
	Stdin    io.Reader
	Stdout   io.Writer
}

// Result is the machine state after a halted run.
type Result struct {
	ExitCode int
	Steps    int
	Regs     [mips.NumRegisters]int32
}

// Run executes prog to completion under cfg.
func Run(prog *Program, cfg Config) (Result, error) {
	c := NewCPU(prog)
	c.Output = cfg.Stdout
	if cfg.Stdin != nil {
		c.Input = bufio.NewReader(cfg.Stdin)
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	err := c.Run(maxSteps)
	return Result{ExitCode: c.ExitCode, Steps: c.Steps, Regs: c.Regs}, err
}
