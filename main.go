package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"minic/pkg/mips"
	"minic/pkg/sim"
)

func main() {
	inPath := flag.String("in", "", "input assembly file path")
	runProgram := flag.Bool("run", false, "run the assembled program on the simulator")
	debug := flag.Bool("debug", false, "step through the program interactively")
	stdinPath := flag.String("stdin", "", "file to feed the program as input (default: terminal, or none under -debug)")
	steps := flag.Int("steps", sim.DefaultMaxSteps, "instruction limit when running")
	dump := flag.Bool("regs", false, "print the register file after the run")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file.s>")
		flag.Usage()
		os.Exit(2)
	}

	source, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
		os.Exit(1)
	}

	prog, err := sim.Assemble(string(source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "assembled %d instructions, %d data bytes\n", len(prog.Text), len(prog.Data))

	if !*runProgram && !*debug {
		return
	}

	var stdin io.Reader = os.Stdin
	if *debug {
		// the prompt owns the terminal
		stdin = nil
	}
	if *stdinPath != "" {
		f, err := os.Open(*stdinPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open stdin file %q: %v\n", *stdinPath, err)
			os.Exit(1)
		}
		defer f.Close()
		stdin = f
	}

	if *debug {
		cpu := sim.NewCPU(prog)
		cpu.Output = os.Stdout
		if stdin != nil {
			cpu.Input = bufio.NewReader(stdin)
		}
		runDebugger(cpu, *steps)
		return
	}

	res, err := sim.Run(prog, sim.Config{MaxSteps: *steps, Stdin: stdin, Stdout: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", *inPath, err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "\nrun complete (%s): exit=%d steps=%d SP=0x%08X FP=0x%08X V0=%d\n",
		*inPath, res.ExitCode, res.Steps, uint32(res.Regs[mips.SP]), uint32(res.Regs[mips.FP]), res.Regs[mips.V0])
	if *dump {
		for r := mips.Register(0); r < mips.NumRegisters; r++ {
			fmt.Fprintf(os.Stderr, "%-6s %d\n", r, res.Regs[r])
		}
	}
	os.Exit(res.ExitCode)
}
