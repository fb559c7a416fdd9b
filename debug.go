package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"minic/pkg/mips"
	"minic/pkg/sim"
)

const (
	debugPrompt = "(mdb) "
	historyFile = ".mdb_history"
)

const debugHelp = `commands:
  s, step [n]            execute n instructions (default 1)
  c, continue            run until halt, breakpoint or step limit
  b, break <label|addr>  set a breakpoint
  d, delete <label|addr> clear a breakpoint
  r, regs                print the register file
  x, mem <label|addr> [n] print n words of memory (default 4)
  l, labels              list labels by address
  q, quit                leave the debugger`

// debugger drives a CPU one command at a time.
type debugger struct {
	cpu    *sim.CPU
	out    io.Writer
	breaks map[uint32]bool
	limit  int
}

func newDebugger(cpu *sim.CPU, out io.Writer, limit int) *debugger {
	return &debugger{cpu: cpu, out: out, breaks: make(map[uint32]bool), limit: limit}
}

// where prints the instruction about to execute.
func (d *debugger) where() {
	if d.cpu.Halted {
		fmt.Fprintf(d.out, "halted, exit code %d after %d steps\n", d.cpu.ExitCode, d.cpu.Steps)
		return
	}
	in, ok := d.cpu.Next()
	if !ok {
		fmt.Fprintf(d.out, "0x%08x  <end of text>\n", d.cpu.PC)
		return
	}
	fmt.Fprintf(d.out, "0x%08x  %-28s # line %d\n", d.cpu.PC, in, in.Line)
}

// address resolves a label or a numeric address.
func (d *debugger) address(s string) (uint32, error) {
	if addr, ok := d.cpu.Program().Labels[s]; ok {
		return addr, nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown label or address %q", s)
	}
	return uint32(n), nil
}

func (d *debugger) step(n int) error {
	for i := 0; i < n && !d.cpu.Halted; i++ {
		if err := d.cpu.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (d *debugger) cont() error {
	// always leave the current breakpoint before checking again
	if err := d.step(1); err != nil {
		return err
	}
	for !d.cpu.Halted {
		if d.breaks[d.cpu.PC] {
			fmt.Fprintf(d.out, "breakpoint at 0x%08x\n", d.cpu.PC)
			return nil
		}
		if d.cpu.Steps >= d.limit {
			return fmt.Errorf("%w: %d steps", sim.ErrStepLimit, d.limit)
		}
		if err := d.cpu.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (d *debugger) regs() {
	fmt.Fprintf(d.out, "pc 0x%08x  hi %d  lo %d\n", d.cpu.PC, d.cpu.HI, d.cpu.LO)
	for r := mips.Register(0); r < mips.NumRegisters; r++ {
		fmt.Fprintf(d.out, "%-5s %-12d", r, d.cpu.Regs[r])
		if r%4 == 3 {
			fmt.Fprintln(d.out)
		}
	}
}

func (d *debugger) mem(addr uint32, words int) {
	addr &^= 3
	for i := 0; i < words; i++ {
		a := addr + uint32(4*i)
		// assemble by hand so an inspection never faults the machine
		v := uint32(d.cpu.ReadByte(a)) | uint32(d.cpu.ReadByte(a+1))<<8 |
			uint32(d.cpu.ReadByte(a+2))<<16 | uint32(d.cpu.ReadByte(a+3))<<24
		fmt.Fprintf(d.out, "0x%08x  0x%08x  %d\n", a, v, int32(v))
	}
}

func (d *debugger) labels() {
	names := make([]string, 0, len(d.cpu.Program().Labels))
	for name := range d.cpu.Program().Labels {
		names = append(names, name)
	}
	labels := d.cpu.Program().Labels
	sort.Slice(names, func(i, j int) bool {
		if labels[names[i]] != labels[names[j]] {
			return labels[names[i]] < labels[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(d.out, "0x%08x  %s\n", labels[name], name)
	}
}

// exec runs one command line. It returns false when the session is over.
func (d *debugger) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	args := fields[1:]
	var err error

	switch fields[0] {
	case "s", "step":
		n := 1
		if len(args) > 0 {
			if n, err = strconv.Atoi(args[0]); err != nil || n < 1 {
				err = fmt.Errorf("bad step count %q", args[0])
				break
			}
		}
		if err = d.step(n); err == nil {
			d.where()
		}
	case "c", "continue":
		if err = d.cont(); err == nil {
			d.where()
		}
	case "b", "break", "d", "delete":
		if len(args) != 1 {
			err = errors.New("expected one label or address")
			break
		}
		var addr uint32
		if addr, err = d.address(args[0]); err != nil {
			break
		}
		if fields[0][0] == 'b' {
			d.breaks[addr] = true
			fmt.Fprintf(d.out, "breakpoint set at 0x%08x\n", addr)
		} else {
			delete(d.breaks, addr)
		}
	case "r", "regs":
		d.regs()
	case "x", "mem":
		if len(args) == 0 {
			err = errors.New("expected a label or address")
			break
		}
		var addr uint32
		if addr, err = d.address(args[0]); err != nil {
			break
		}
		words := 4
		if len(args) > 1 {
			if words, err = strconv.Atoi(args[1]); err != nil || words < 1 {
				err = fmt.Errorf("bad word count %q", args[1])
				break
			}
		}
		d.mem(addr, words)
	case "l", "labels":
		d.labels()
	case "h", "help":
		fmt.Fprintln(d.out, debugHelp)
	case "q", "quit":
		return false
	default:
		err = fmt.Errorf("unknown command %q (try help)", fields[0])
	}

	if err != nil {
		fmt.Fprintln(d.out, "error:", err)
	}
	return true
}

// runDebugger runs an interactive session over cpu until quit or EOF.
func runDebugger(cpu *sim.CPU, limit int) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	d := newDebugger(cpu, os.Stdout, limit)
	d.where()
	last := ""
	for {
		line, err := ln.Prompt(debugPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "prompt:", err)
			return
		}
		// an empty line repeats the previous command
		if strings.TrimSpace(line) == "" {
			line = last
		} else {
			ln.AppendHistory(line)
			last = line
		}
		if !d.exec(line) {
			return
		}
	}
}
